// internal/database/match.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MatchResultRow is one player's line in the persisted score sheet.
type MatchResultRow struct {
	PlayerID uuid.UUID
	Score    int
	DidWin   bool
}

// RecordMatchResults persists the final outcome of a match: the match row is
// upserted to completed and every player's score and win flag is written.
func RecordMatchResults(ctx context.Context, matchID uuid.UUID, results []MatchResultRow) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertMatch := `
			INSERT INTO matches (id, status, end_time)
			VALUES ($1, 'completed', NOW())
			ON CONFLICT (id) DO UPDATE SET status = 'completed', end_time = NOW()
		`
		if _, e := tx.Exec(ctx, upsertMatch, matchID); e != nil {
			return e
		}

		for _, row := range results {
			q := `
				INSERT INTO match_results (match_id, player_id, score, did_win)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (match_id, player_id)
				DO UPDATE SET score=$3, did_win=$4
			`
			if _, e := tx.Exec(ctx, q, matchID, row.PlayerID, row.Score, row.DidWin); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert match results: %w", err)
	}
	return nil
}

// StoreFinalMatchStateInDB writes a JSON snapshot of the finished match
// (hands, table, winner) into matches.final_state for later review.
func StoreFinalMatchStateInDB(ctx context.Context, matchID uuid.UUID, snapshot map[string]interface{}) error {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal final snapshot: %w", err)
	}
	q := `
		UPDATE matches
		SET final_state = $1
		WHERE id = $2
	`
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, jsonData, matchID)
		return e
	})
	if err != nil {
		return fmt.Errorf("storing final match state: %w", err)
	}
	return nil
}
