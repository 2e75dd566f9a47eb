package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/streampanel/resolvd/internal/model"
	"github.com/streampanel/resolvd/internal/store"
)

// Scheduler periodically re-installs the resolver program from its recorded
// source URL and invalidates the result cache. It owns at most one timer
// goroutine; a new Schedule call fully tears down the previous one first.
type Scheduler struct {
	programs *ProgramStore
	cache    *Cache
	store    store.Store
	logger   *slog.Logger

	// swapMu serializes whole replace sequences (tear down, then install)
	// so two concurrent Schedule calls cannot both pass the teardown and
	// strand one timer goroutine with no reachable stop channel. mu guards
	// only the field reads below it.
	swapMu sync.Mutex

	mu       sync.Mutex
	interval string
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates an inactive scheduler.
func NewScheduler(p *ProgramStore, c *Cache, st store.Store, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		programs: p,
		cache:    c,
		store:    st,
		logger:   logger,
	}
}

// ParseInterval converts an operator interval string to a duration. The
// accepted forms are "H:MM" (every H hours and MM minutes; "0:MM" means
// every MM minutes) and a bare "MM". Hours must be 0–23 and minutes 0–59;
// a zero total is rejected.
func ParseInterval(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)

	var hours, minutes int
	var err error
	if h, m, ok := strings.Cut(spec, ":"); ok {
		hours, err = strconv.Atoi(h)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
		}
		minutes, err = strconv.Atoi(m)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
		}
	} else {
		minutes, err = strconv.Atoi(spec)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
		}
	}

	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
	}

	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if d == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
	}
	return d, nil
}

// Schedule installs a refresh timer firing every spec interval, replacing
// any existing schedule. Invalid specs fail with ErrInvalidSchedule and
// leave the existing schedule untouched.
func (s *Scheduler) Schedule(ctx context.Context, spec string) error {
	interval, err := ParseInterval(spec)
	if err != nil {
		return err
	}
	s.StartEvery(interval, spec)
	return nil
}

// StartEvery installs a refresh timer with an explicit period, replacing
// any existing schedule. Schedule is the interval-parsing front end; this
// is the raw entry point beneath it.
func (s *Scheduler) StartEvery(interval time.Duration, spec string) {
	ctx := context.Background()

	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	s.stopLocked(ctx)

	s.mu.Lock()
	s.interval = spec
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.loop(interval, stopCh, doneCh)

	s.persist(ctx, &model.ScheduleState{HumanInterval: spec, Active: true})
	s.logger.Info("refresh schedule installed", "interval", spec, "every", interval.String())
}

// Stop cancels the active schedule if any and reports whether one was
// active. Idempotent.
func (s *Scheduler) Stop(ctx context.Context) bool {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	return s.stopLocked(ctx)
}

// stopLocked tears down the current timer goroutine. Callers hold swapMu.
func (s *Scheduler) stopLocked(ctx context.Context) bool {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	interval := s.interval
	s.mu.Unlock()

	if stopCh == nil {
		return false
	}

	close(stopCh)
	<-doneCh

	s.persist(ctx, &model.ScheduleState{HumanInterval: interval, Active: false})
	s.logger.Info("refresh schedule stopped", "interval", interval)
	return true
}

// Active reports whether a schedule is currently installed.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// Interval returns the operator's original interval spec, "" if never set.
func (s *Scheduler) Interval() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// RunNow performs one refresh tick synchronously: re-install from the
// recorded source URL when one exists, then clear the cache. The cache is
// cleared even when the re-install fails; a failed install leaves the prior
// program's semantics in force, and the design prefers a cold cache over a
// potentially mismatched one.
func (s *Scheduler) RunNow(ctx context.Context) {
	scheduledRefreshes.Inc()

	if src := s.programs.SourceURL(); src != "" {
		if err := s.programs.Install(ctx, src); err != nil {
			s.logger.Error("scheduled re-install failed", "source_url", src, "error", err)
		}
	}

	s.cache.Clear()
	s.logger.Info("refresh tick complete", "cache_entries", s.cache.Size())
}

func (s *Scheduler) loop(interval time.Duration, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stopCh:
			return
		}
	}
}

func (s *Scheduler) persist(ctx context.Context, ss *model.ScheduleState) {
	if err := s.store.SaveScheduleState(ctx, ss); err != nil {
		s.logger.Error("persist schedule state", "error", err)
	}
}
