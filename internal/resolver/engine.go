package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/streampanel/resolvd/internal/model"
	"github.com/streampanel/resolvd/internal/store"
)

// throttleBackoff is the cooperative wait applied when another invocation is
// already in flight. It is a soft throttle, not a queue: after the wait the
// call proceeds regardless, since per-call artifact names keep overlapping
// invocations isolated.
const throttleBackoff = 500 * time.Millisecond

// Engine resolves one request to one result: cache lookup first, otherwise
// one invocation of the installed resolver program over the file protocol.
type Engine struct {
	programs *ProgramStore
	cache    *Cache
	store    store.Store
	logger   *slog.Logger
	workDir  string

	// execTimeout bounds one program invocation. Zero disables the bound,
	// matching the original run-to-completion behavior.
	execTimeout time.Duration

	mu        sync.Mutex
	executing bool
	lastRunAt time.Time
	lastError string

	sleep func(context.Context, time.Duration)
}

// NewEngine creates an execution engine. workDir holds the per-call IPC
// artifacts; execTimeout of zero means invocations run unbounded.
func NewEngine(p *ProgramStore, c *Cache, st store.Store, workDir string, execTimeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		programs:    p,
		cache:       c,
		store:       st,
		logger:      logger,
		workDir:     workDir,
		execTimeout: execTimeout,
		sleep:       sleepCtx,
	}
}

// Cache returns the engine's result cache.
func (e *Engine) Cache() *Cache { return e.cache }

// Executing reports whether an invocation is currently in flight.
func (e *Engine) Executing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executing
}

// LastExecutionAt returns the time of the last completed invocation, zero
// if none has run.
func (e *Engine) LastExecutionAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRunAt
}

// LastError returns the recorded error of the most recent failed operation,
// "" after a success.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

// SetLastError records an error message for the status snapshot. Exposed so
// the program store's install failures surface the same way execution
// failures do.
func (e *Engine) SetLastError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastError = msg
}

// Resolve resolves req to a playable URL plus headers. It returns nil when
// resolution is unavailable for any reason; the caller falls back to the
// unresolved input. Errors never propagate: they are recorded on the run
// row and in the last-error state.
func (e *Engine) Resolve(ctx context.Context, req model.ResolveRequest) *model.ResolveResult {
	fingerprint := req.Fingerprint()

	if result, ok := e.cache.Get(fingerprint); ok {
		resolutionsTotal.WithLabelValues("cache_hit").Inc()
		e.recordRun(ctx, &model.Run{
			ID:          model.NewID(),
			Fingerprint: fingerprint,
			DisplayName: req.DisplayName,
			Status:      model.RunCacheHit,
			CreatedAt:   time.Now().UTC(),
		})
		return &result
	}

	if !e.programs.Exists() {
		e.fail(ctx, fingerprint, req.DisplayName, 0, ErrProgramMissing)
		return nil
	}

	// Soft throttle: wait once, then proceed regardless of whether the
	// prior call finished.
	if e.Executing() {
		e.sleep(ctx, throttleBackoff)
	}

	e.setExecuting(true)
	defer e.setExecuting(false)

	start := time.Now()
	result, err := e.invoke(ctx, req)
	duration := time.Since(start)

	if err != nil {
		e.fail(ctx, fingerprint, req.DisplayName, duration, err)
		return nil
	}

	e.cache.Put(fingerprint, *result)

	e.mu.Lock()
	e.lastRunAt = time.Now().UTC()
	e.lastError = ""
	e.mu.Unlock()

	resolutionsTotal.WithLabelValues("success").Inc()
	resolutionDuration.Observe(duration.Seconds())
	e.recordRun(ctx, &model.Run{
		ID:          model.NewID(),
		Fingerprint: fingerprint,
		DisplayName: req.DisplayName,
		Status:      model.RunSucceeded,
		DurationMS:  int(duration.Milliseconds()),
		CreatedAt:   time.Now().UTC(),
	})

	return result
}

// invoke runs one resolver process: serialize the request to a fresh input
// artifact, execute <runtime> <program> --resolve <in> <out>, parse the
// output artifact.
func (e *Engine) invoke(ctx context.Context, req model.ResolveRequest) (*model.ResolveResult, error) {
	token := model.NewID()
	inPath := filepath.Join(e.workDir, "resolve-"+token+"-in.json")
	outPath := filepath.Join(e.workDir, "resolve-"+token+"-out.json")

	input := req
	if input.Headers == nil {
		input.Headers = map[string]string{}
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("serialize request: %w", err)
	}
	if err := os.WriteFile(inPath, payload, 0o600); err != nil {
		return nil, fmt.Errorf("write input artifact: %w", err)
	}

	runCtx := ctx
	if e.execTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.execTimeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.programs.Runtime(), e.programs.Path(), "--resolve", inPath, outPath)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ProcessError{Stderr: stderr.String(), Err: err}
	}

	// A well-behaved program may still warn on stderr; surface it without
	// failing the call.
	if stderr.Len() > 0 {
		e.logger.Warn("resolver program stderr", "channel", req.DisplayName, "stderr", stderr.String())
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrOutputMissing
		}
		return nil, fmt.Errorf("read output artifact: %w", err)
	}

	var result model.ResolveResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ParseError{Raw: string(raw), Err: err}
	}

	// Cleanup is best-effort; a leftover artifact is log noise, not a fault.
	for _, path := range []string{inPath, outPath} {
		if err := os.Remove(path); err != nil {
			e.logger.Warn("remove IPC artifact", "path", path, "error", err)
		}
	}

	return &result, nil
}

func (e *Engine) setExecuting(v bool) {
	e.mu.Lock()
	e.executing = v
	e.mu.Unlock()
}

func (e *Engine) fail(ctx context.Context, fingerprint, displayName string, duration time.Duration, err error) {
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()

	e.logger.Error("resolution failed", "channel", displayName, "error", err)
	resolutionsTotal.WithLabelValues("failure").Inc()
	e.recordRun(ctx, &model.Run{
		ID:          model.NewID(),
		Fingerprint: fingerprint,
		DisplayName: displayName,
		Status:      model.RunFailed,
		Error:       err.Error(),
		DurationMS:  int(duration.Milliseconds()),
		CreatedAt:   time.Now().UTC(),
	})
}

func (e *Engine) recordRun(ctx context.Context, r *model.Run) {
	if err := e.store.InsertRun(ctx, r); err != nil {
		e.logger.Error("persist run record", "run_id", r.ID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
