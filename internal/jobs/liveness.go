// Package jobs contains the agent's scheduled work. The only job today is
// the session liveness check, which runs on a fixed interval while a user
// is authenticated.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// LivenessTimer fires fn on a fixed interval between Arm and Disarm. Arm
// while armed and Disarm while disarmed are no-ops, so the coordinator can
// call them on every phase transition without bookkeeping.
type LivenessTimer struct {
	cron     *cron.Cron
	interval time.Duration
	fn       func()
	log      zerolog.Logger

	mu    sync.Mutex
	entry cron.EntryID
	armed bool
}

func NewLivenessTimer(interval time.Duration, fn func(), log zerolog.Logger) *LivenessTimer {
	c := cron.New()
	c.Start()
	return &LivenessTimer{
		cron:     c,
		interval: interval,
		fn:       fn,
		log:      log.With().Str("component", "liveness").Logger(),
	}
}

func (t *LivenessTimer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.armed {
		return
	}

	entry, err := t.cron.AddFunc(fmt.Sprintf("@every %s", t.interval), t.fn)
	if err != nil {
		t.log.Error().Err(err).Msg("arm failed")
		return
	}
	t.entry = entry
	t.armed = true
	t.log.Debug().Dur("interval", t.interval).Msg("armed")
}

func (t *LivenessTimer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.armed {
		return
	}
	t.cron.Remove(t.entry)
	t.armed = false
	t.log.Debug().Msg("disarmed")
}

func (t *LivenessTimer) Close() {
	t.Disarm()
	<-t.cron.Stop().Done()
}
