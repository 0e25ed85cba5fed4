// store persists evaluation reports so that runs can be listed, compared and
// served after the process that produced them has exited.
package store

import (
	"context"
	"fmt"
	"time"

	"gnneval/evaluation"
)

// Summary is the listing row of a stored report.
type Summary struct {
	RunID      string
	CreatedAt  time.Time
	Accuracy   float64
	MeanReward evaluation.MeanReward
	Scenarios  int
}

func Summarize(rep *evaluation.Report) Summary {
	return Summary{
		RunID:      rep.RunID,
		CreatedAt:  rep.CreatedAt,
		Accuracy:   rep.Accuracy,
		MeanReward: rep.MeanReward,
		Scenarios:  len(rep.Comparisons),
	}
}

// Store saves and loads reports keyed by run id. Get returns false, not an
// error, for an unknown id. ListReports is newest first.
type Store interface {
	Init(ctx context.Context) error
	SaveReport(ctx context.Context, rep *evaluation.Report) error
	GetReport(ctx context.Context, runID string) (*evaluation.Report, bool, error)
	ListReports(ctx context.Context) ([]Summary, error)
	Close() error
}

// NewStore selects a backend: "memory" (or empty) or "sqlite", which requires a path.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
