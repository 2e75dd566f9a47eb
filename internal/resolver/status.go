package resolver

import (
	"context"
	"time"

	"github.com/streampanel/resolvd/internal/store"
)

// Status is a point-in-time snapshot of subsystem health. Read-only
// aggregation; producing it has no side effects.
type Status struct {
	Executing        bool            `json:"executing"`
	LastExecutionAt  *time.Time      `json:"last_execution_at,omitempty"`
	LastError        string          `json:"last_error,omitempty"`
	ProgramInstalled bool            `json:"program_installed"`
	ProgramVersion   string          `json:"program_version"`
	SourceURL        string          `json:"source_url,omitempty"`
	Interval         string          `json:"interval,omitempty"`
	ScheduleActive   bool            `json:"schedule_active"`
	CacheEntries     int             `json:"cache_entries"`
	Runs             *store.RunStats `json:"runs,omitempty"`
}

// StatusReporter aggregates the state of the engine, program store,
// scheduler, and run history into one snapshot.
type StatusReporter struct {
	engine    *Engine
	programs  *ProgramStore
	scheduler *Scheduler
	store     store.Store
}

// NewStatusReporter creates a status reporter over the given components.
func NewStatusReporter(e *Engine, p *ProgramStore, s *Scheduler, st store.Store) *StatusReporter {
	return &StatusReporter{engine: e, programs: p, scheduler: s, store: st}
}

// Snapshot produces the current status. Run statistics are best-effort: a
// store failure leaves Runs nil rather than failing the snapshot.
func (r *StatusReporter) Snapshot(ctx context.Context) *Status {
	st := &Status{
		Executing:        r.engine.Executing(),
		LastError:        r.engine.LastError(),
		ProgramInstalled: r.programs.Exists(),
		ProgramVersion:   r.programs.Version(),
		SourceURL:        r.programs.SourceURL(),
		Interval:         r.scheduler.Interval(),
		ScheduleActive:   r.scheduler.Active(),
		CacheEntries:     r.engine.Cache().Size(),
	}

	if last := r.engine.LastExecutionAt(); !last.IsZero() {
		st.LastExecutionAt = &last
	}

	if stats, err := r.store.GetRunStats(ctx); err == nil {
		st.Runs = stats
	}

	return st
}
