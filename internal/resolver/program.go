package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/streampanel/resolvd/internal/model"
	"github.com/streampanel/resolvd/internal/store"
)

const (
	// Entry-point markers the installed program must declare. At least one
	// is required; their presence is the whole of install-time validation,
	// since the program's logic is opaque.
	markerLink   = "def resolve_link"
	markerStream = "def resolve_stream"

	// readyToken must appear on stdout or stderr of a --check invocation.
	readyToken = "resolver_ready"

	downloadTimeout = 30 * time.Second
	maxProgramSize  = 8 << 20 // 8 MB
	checkTimeout    = 15 * time.Second
)

var versionPattern = regexp.MustCompile(`RESOLVER_VERSION\s*=\s*["']([^"']+)["']`)

// ProgramStore manages the lifecycle of the single active resolver program
// on durable storage. It exclusively owns the on-disk artifact and the
// associated ProgramState.
type ProgramStore struct {
	path    string
	runtime string
	store   store.Store
	logger  *slog.Logger
	client  *http.Client

	mu    sync.Mutex
	state model.ProgramState
}

// NewProgramStore creates a program store for the artifact at path, executed
// with the given runtime command (e.g. "python3").
func NewProgramStore(path, runtime string, st store.Store, logger *slog.Logger) *ProgramStore {
	return &ProgramStore{
		path:    path,
		runtime: runtime,
		store:   st,
		logger:  logger,
		client:  &http.Client{Timeout: downloadTimeout},
		state:   model.ProgramState{Path: path, Version: "N/A"},
	}
}

// Restore loads persisted program state, so a restarted service remembers
// the source URL a scheduled refresh should re-install from. Missing state
// is not an error.
func (p *ProgramStore) Restore(ctx context.Context) error {
	ps, err := p.store.GetProgramState(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.state = *ps
	p.state.Path = p.path
	p.mu.Unlock()
	return nil
}

// Path returns the fixed on-disk location of the program artifact.
func (p *ProgramStore) Path() string { return p.path }

// Runtime returns the command used to execute the program.
func (p *ProgramStore) Runtime() string { return p.runtime }

// Exists reports whether a program artifact is present on disk.
func (p *ProgramStore) Exists() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

// SourceURL returns the origin the program was last downloaded from, or ""
// if only a template was ever installed.
func (p *ProgramStore) SourceURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.SourceURL
}

// State returns a copy of the current program state.
func (p *ProgramStore) State() model.ProgramState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Install fetches the program body from sourceURL and installs it at the
// fixed storage path, atomically replacing any prior version. The body must
// contain at least one entry-point marker; a body with neither fails with
// ErrInvalidProgram and leaves the prior program untouched.
func (p *ProgramStore) Install(ctx context.Context, sourceURL string) (err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		installsTotal.WithLabelValues(outcome).Inc()
	}()

	body, err := p.download(ctx, sourceURL)
	if err != nil {
		return err
	}

	if !bytes.Contains(body, []byte(markerLink)) && !bytes.Contains(body, []byte(markerStream)) {
		return fmt.Errorf("%w: need %q or %q", ErrInvalidProgram, markerLink, markerStream)
	}

	if err := p.write(body); err != nil {
		return err
	}

	p.recordInstall(ctx, sourceURL, extractVersion(body))
	p.logger.Info("resolver program installed",
		"source_url", sourceURL,
		"version", p.State().Version,
		"bytes", len(body),
	)
	return nil
}

// InstallTemplate writes the bundled reference program to the storage path,
// unconditionally overwriting any existing program.
func (p *ProgramStore) InstallTemplate(ctx context.Context) error {
	if err := p.write(templateProgram); err != nil {
		return err
	}

	p.recordInstall(ctx, "", extractVersion(templateProgram))
	p.logger.Info("template resolver installed", "path", p.path)
	return nil
}

// CheckHealth verifies that the program exists, that the runtime is
// invocable, and that a --check invocation emits the readiness token on
// stdout or stderr. It does not mutate program state.
func (p *ProgramStore) CheckHealth(ctx context.Context) error {
	if !p.Exists() {
		return ErrNotFound
	}
	if _, err := exec.LookPath(p.runtime); err != nil {
		return fmt.Errorf("%w: %s", ErrRuntimeUnavailable, p.runtime)
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.runtime, p.path, "--check")
	out, err := cmd.CombinedOutput()
	if !bytes.Contains(out, []byte(readyToken)) {
		if err != nil {
			return fmt.Errorf("self-check failed: %w: %.200s", err, out)
		}
		return fmt.Errorf("self-check did not emit %q", readyToken)
	}
	return nil
}

// Version extracts the program's declared version marker. It returns "N/A"
// when the program is absent or carries no marker, and "Error" when the
// file exists but cannot be read.
func (p *ProgramStore) Version() string {
	body, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "N/A"
		}
		return "Error"
	}
	return extractVersion(body)
}

func (p *ProgramStore) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download program: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download program: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProgramSize+1))
	if err != nil {
		return nil, fmt.Errorf("read program body: %w", err)
	}
	if len(body) > maxProgramSize {
		return nil, fmt.Errorf("program body exceeds %d bytes", maxProgramSize)
	}
	return body, nil
}

// write replaces the program artifact via temp-file-and-rename so an
// in-flight resolution never reads a half-written program.
func (p *ProgramStore) write(body []byte) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	tmp, err := os.CreateTemp(dir, ".resolver-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := os.Chmod(tmpName, 0o755); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (p *ProgramStore) recordInstall(ctx context.Context, sourceURL, version string) {
	now := time.Now().UTC()

	p.mu.Lock()
	p.state = model.ProgramState{
		Path:        p.path,
		SourceURL:   sourceURL,
		Version:     version,
		InstalledAt: &now,
	}
	ps := p.state
	p.mu.Unlock()

	if err := p.store.SaveProgramState(ctx, &ps); err != nil {
		p.logger.Error("persist program state", "error", err)
	}
}

func extractVersion(body []byte) string {
	m := versionPattern.FindSubmatch(body)
	if m == nil {
		return "N/A"
	}
	return string(m[1])
}
