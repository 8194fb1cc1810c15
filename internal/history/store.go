// Package history provides optional SQLite persistence of finished bot
// and arena runs. The live stores never read it back; process state is
// rebuilt from the next subscription.
package history

import (
	"database/sql"
	"fmt"

	"github.com/hireloop/streamcore/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordBotRun upserts a finished bot run
func (s *Store) RecordBotRun(run domain.BotRun) error {
	_, err := s.db.Exec(`
		INSERT INTO bot_runs (id, bot, status, started_at, finished_at, tokens_input, tokens_output, cost_usd, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			tokens_input = excluded.tokens_input,
			tokens_output = excluded.tokens_output,
			cost_usd = excluded.cost_usd,
			error = excluded.error
	`,
		run.ID,
		run.Bot,
		string(run.Status),
		run.StartedAt,
		run.FinishedAt,
		run.TokensInput,
		run.TokensOutput,
		run.CostUSD,
		run.Error,
	)
	return err
}

// ListBotRuns returns the most recent recorded bot runs
func (s *Store) ListBotRuns(limit int) ([]domain.BotRun, error) {
	rows, err := s.db.Query(`
		SELECT id, bot, status, started_at, finished_at, tokens_input, tokens_output, cost_usd, error
		FROM bot_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.BotRun
	for rows.Next() {
		var run domain.BotRun
		var status, errMsg string
		if err := rows.Scan(&run.ID, &run.Bot, &status, &run.StartedAt, &run.FinishedAt,
			&run.TokensInput, &run.TokensOutput, &run.CostUSD, &errMsg); err != nil {
			return nil, err
		}
		run.Status = domain.RunStatus(status)
		run.Error = errMsg
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordArenaRun persists a finished arena run with its stages
func (s *Store) RecordArenaRun(run domain.PipelineRun) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO arena_runs (id, topic, status, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status
	`, run.ID, run.Topic, string(run.Status), run.StartedAt)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM arena_stages WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	for _, st := range run.Stages {
		_, err := tx.Exec(`
			INSERT INTO arena_stages (run_id, role, status, content, word_count, started_at, finished_at, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, string(st.Role), string(st.Status), st.Content, st.WordCount, st.StartedAt, st.FinishedAt, st.Error)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetArenaRun loads one recorded arena run with its stages
func (s *Store) GetArenaRun(id string) (*domain.PipelineRun, error) {
	row := s.db.QueryRow(`SELECT id, topic, status, started_at FROM arena_runs WHERE id = ?`, id)

	var run domain.PipelineRun
	var status string
	if err := row.Scan(&run.ID, &run.Topic, &status, &run.StartedAt); err != nil {
		return nil, err
	}
	run.Status = domain.PipelineStatus(status)

	rows, err := s.db.Query(`
		SELECT role, status, content, word_count, started_at, finished_at, error
		FROM arena_stages WHERE run_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st domain.Stage
		var role, stageStatus, errMsg string
		var content sql.NullString
		if err := rows.Scan(&role, &stageStatus, &content, &st.WordCount, &st.StartedAt, &st.FinishedAt, &errMsg); err != nil {
			return nil, err
		}
		st.Role = domain.StageRole(role)
		st.Status = domain.StageStatus(stageStatus)
		st.Content = content.String
		st.Error = errMsg
		run.Stages = append(run.Stages, st)
	}
	return &run, rows.Err()
}
