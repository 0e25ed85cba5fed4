package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gnneval/evaluation"

	_ "modernc.org/sqlite"
)

// created_at is stored fixed-width so that text order is chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveReport(ctx context.Context, rep *evaluation.Report) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeReport(rep)
	if err != nil {
		return err
	}
	meanReward, err := json.Marshal(rep.MeanReward)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO reports (run_id, created_at, accuracy, mean_reward, scenarios, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			created_at = excluded.created_at,
			accuracy = excluded.accuracy,
			mean_reward = excluded.mean_reward,
			scenarios = excluded.scenarios,
			payload = excluded.payload
	`, rep.RunID, rep.CreatedAt.UTC().Format(timeLayout), rep.Accuracy, meanReward, len(rep.Comparisons), payload)
	return err
}

func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (*evaluation.Report, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM reports WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	rep, err := DecodeReport(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return rep, true, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context) ([]Summary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT run_id, created_at, accuracy, mean_reward, scenarios
		FROM reports
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			summary    Summary
			createdAt  string
			meanReward []byte
		)
		if err := rows.Scan(&summary.RunID, &createdAt, &summary.Accuracy, &meanReward, &summary.Scenarios); err != nil {
			return nil, err
		}
		if summary.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("report %s: %w", summary.RunID, err)
		}
		if err := json.Unmarshal(meanReward, &summary.MeanReward); err != nil {
			return nil, fmt.Errorf("report %s: %w", summary.RunID, err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reports (
			run_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			accuracy REAL NOT NULL,
			mean_reward BLOB NOT NULL,
			scenarios INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
