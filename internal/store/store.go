package store

import (
	"context"

	"github.com/streampanel/resolvd/internal/model"
)

// RunStats holds aggregate resolution statistics.
type RunStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for the resolver subsystem:
// the single program-state row, the single schedule-state row, and the
// resolution run history.
type Store interface {
	SaveProgramState(ctx context.Context, ps *model.ProgramState) error
	GetProgramState(ctx context.Context) (*model.ProgramState, error)
	SaveScheduleState(ctx context.Context, ss *model.ScheduleState) error
	GetScheduleState(ctx context.Context) (*model.ScheduleState, error)
	InsertRun(ctx context.Context, r *model.Run) error
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	GetRunStats(ctx context.Context) (*RunStats, error)
	PruneRuns(ctx context.Context, keep int) error
	Close() error
}
