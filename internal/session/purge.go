package session

import (
	"context"

	"github.com/rs/zerolog"
)

// Keys that survive a logout. Everything else in local storage is
// session-scoped and is deleted.
const (
	KeyThemePreference    = "theme_preference"
	KeyLanguagePreference = "language_preference"
)

func DefaultAllowList() []string {
	return []string{KeyThemePreference, KeyLanguagePreference}
}

// PurgePolicy deletes every stored key that is not on the allow-list, in
// one batched removal. It never fails the caller: a storage error here
// must not keep a logout from completing.
type PurgePolicy struct {
	Allow []string
}

func (p PurgePolicy) Apply(ctx context.Context, store LocalStorage, log zerolog.Logger) {
	keys, err := store.ListKeys(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("purge: list keys failed")
		return
	}

	allowed := make(map[string]struct{}, len(p.Allow))
	for _, key := range p.Allow {
		allowed[key] = struct{}{}
	}

	doomed := keys[:0]
	for _, key := range keys {
		if _, keep := allowed[key]; !keep {
			doomed = append(doomed, key)
		}
	}
	if len(doomed) == 0 {
		return
	}

	if err := store.RemoveMany(ctx, doomed); err != nil {
		log.Warn().Err(err).Int("keys", len(doomed)).Msg("purge: remove failed")
		return
	}
	log.Debug().Int("keys", len(doomed)).Msg("purged session-scoped storage")
}
