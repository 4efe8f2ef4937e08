// Command orphanscrub finds identities that have no profile row: the
// leftovers of registrations whose profile step failed and whose rollback
// also failed. It lists them, and with -delete removes them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fieldnote/agent/internal/log"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("FIELDNOTE_BACKEND_DSN"), "postgres DSN of the backend database")
	olderThan := flag.Duration("older-than", time.Hour, "only consider identities created before now minus this window")
	doDelete := flag.Bool("delete", false, "delete the orphaned identities instead of listing them")
	flag.Parse()

	logger := log.New("operator")

	if *dsn == "" {
		logger.Fatal().Msg("dsn is required (flag -dsn or FIELDNOTE_BACKEND_DSN)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres failed")
	}
	defer pool.Close()

	cutoff := time.Now().Add(-*olderThan)

	const listQuery = `
		SELECT i.id, i.email, i.created_at
		FROM identities i
		LEFT JOIN profiles p ON p.identity_id = i.id
		WHERE p.identity_id IS NULL AND i.created_at < $1
		ORDER BY i.created_at
	`

	rows, err := pool.Query(ctx, listQuery, cutoff)
	if err != nil {
		logger.Fatal().Err(err).Msg("list orphans failed")
	}

	type orphan struct {
		id        string
		email     string
		createdAt time.Time
	}
	var orphans []orphan
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.id, &o.email, &o.createdAt); err != nil {
			rows.Close()
			logger.Fatal().Err(err).Msg("scan failed")
		}
		orphans = append(orphans, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		logger.Fatal().Err(err).Msg("list orphans failed")
	}

	if len(orphans) == 0 {
		logger.Info().Msg("no orphaned identities")
		return
	}

	for _, o := range orphans {
		fmt.Printf("%s\t%s\t%s\n", o.id, o.email, o.createdAt.Format(time.RFC3339))
	}
	logger.Info().Int("count", len(orphans)).Msg("orphaned identities found")

	if !*doDelete {
		logger.Info().Msg("dry run; re-run with -delete to remove them")
		return
	}

	const deleteQuery = `
		DELETE FROM identities i
		USING (
			SELECT i2.id
			FROM identities i2
			LEFT JOIN profiles p ON p.identity_id = i2.id
			WHERE p.identity_id IS NULL AND i2.created_at < $1
		) doomed
		WHERE i.id = doomed.id
	`

	tag, err := pool.Exec(ctx, deleteQuery, cutoff)
	if err != nil {
		logger.Fatal().Err(err).Msg("delete orphans failed")
	}
	logger.Info().Int64("deleted", tag.RowsAffected()).Msg("orphaned identities removed")
}
