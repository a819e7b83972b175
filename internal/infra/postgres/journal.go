package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-play-gateway/internal/domain"
)

// Journal persists finished sessions to the play_history table.
type Journal struct {
	pool *pgxpool.Pool
}

func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

func (j *Journal) Record(ctx context.Context, entry domain.JournalEntry) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO play_history (session_id, address, tournament_id, correct, total, passed, recorded, tx_hash, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE
		SET correct=EXCLUDED.correct, total=EXCLUDED.total, passed=EXCLUDED.passed,
		    recorded=EXCLUDED.recorded, tx_hash=EXCLUDED.tx_hash, finished_at=EXCLUDED.finished_at`,
		entry.SessionID, entry.Address, entry.TournamentID, entry.Correct, entry.Total,
		entry.Passed, entry.Recorded, entry.TxHash, entry.FinishedAt)
	if err != nil {
		return fmt.Errorf("record play: %w", err)
	}
	return nil
}

// RecentByAddress returns the newest finished sessions for an address.
func (j *Journal) RecentByAddress(ctx context.Context, address string, limit int) ([]domain.JournalEntry, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT session_id, address, tournament_id, correct, total, passed, recorded, COALESCE(tx_hash, ''), finished_at
		FROM play_history WHERE address=$1 ORDER BY finished_at DESC LIMIT $2`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("load play history: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(&e.SessionID, &e.Address, &e.TournamentID, &e.Correct, &e.Total,
			&e.Passed, &e.Recorded, &e.TxHash, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan play history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
