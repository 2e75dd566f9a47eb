package resolver_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/streampanel/resolvd/internal/resolver"
	"github.com/streampanel/resolvd/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// programBody is a minimal artifact that passes marker validation.
const programBody = `RESOLVER_VERSION = "3.1.4"

def resolve_link(request):
    return request
`

func serveBody(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestInstallFromURL(t *testing.T) {
	st := newTestStore(t)
	path := filepath.Join(t.TempDir(), "resolver.py")
	ps := resolver.NewProgramStore(path, "python3", st, testLogger())

	ts := serveBody(t, http.StatusOK, programBody)

	if err := ps.Install(context.Background(), ts.URL); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if !ps.Exists() {
		t.Fatal("program not on disk after install")
	}
	if got := ps.Version(); got != "3.1.4" {
		t.Errorf("Version = %q, want 3.1.4", got)
	}
	if got := ps.SourceURL(); got != ts.URL {
		t.Errorf("SourceURL = %q, want %q", got, ts.URL)
	}

	// State survives in the store for restart recovery.
	persisted, err := st.GetProgramState(context.Background())
	if err != nil {
		t.Fatalf("GetProgramState: %v", err)
	}
	if persisted.SourceURL != ts.URL || persisted.Version != "3.1.4" {
		t.Errorf("persisted state = %+v", persisted)
	}
}

func TestInstallRejectsBodyWithoutMarkers(t *testing.T) {
	st := newTestStore(t)
	path := filepath.Join(t.TempDir(), "resolver.py")
	ps := resolver.NewProgramStore(path, "python3", st, testLogger())

	// Install a valid program first; the bad install must not clobber it.
	good := serveBody(t, http.StatusOK, programBody)
	if err := ps.Install(context.Background(), good.URL); err != nil {
		t.Fatalf("Install good: %v", err)
	}

	bad := serveBody(t, http.StatusOK, "print('not a resolver')\n")
	err := ps.Install(context.Background(), bad.URL)
	if !errors.Is(err, resolver.ErrInvalidProgram) {
		t.Fatalf("Install bad: err = %v, want ErrInvalidProgram", err)
	}

	body, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("read program: %v", readErr)
	}
	if !strings.Contains(string(body), "def resolve_link") {
		t.Error("failed install overwrote the previous program")
	}
}

func TestInstallDownloadFailure(t *testing.T) {
	st := newTestStore(t)
	ps := resolver.NewProgramStore(filepath.Join(t.TempDir(), "resolver.py"), "python3", st, testLogger())

	ts := serveBody(t, http.StatusInternalServerError, "boom")
	if err := ps.Install(context.Background(), ts.URL); err == nil {
		t.Error("Install succeeded against a 500 response")
	}
	if ps.Exists() {
		t.Error("failed download left an artifact on disk")
	}
}

func TestInstallTemplate(t *testing.T) {
	st := newTestStore(t)
	path := filepath.Join(t.TempDir(), "resolver.py")
	ps := resolver.NewProgramStore(path, "python3", st, testLogger())

	if err := ps.InstallTemplate(context.Background()); err != nil {
		t.Fatalf("InstallTemplate: %v", err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	for _, marker := range []string{"def resolve_link", "def resolve_stream", "resolver_ready"} {
		if !strings.Contains(string(body), marker) {
			t.Errorf("template missing %q", marker)
		}
	}
	if got := ps.Version(); got == "N/A" || got == "Error" {
		t.Errorf("template Version = %q, want a declared version", got)
	}
	if got := ps.SourceURL(); got != "" {
		t.Errorf("SourceURL after template install = %q, want empty", got)
	}
}

func TestVersionAbsentProgram(t *testing.T) {
	st := newTestStore(t)
	ps := resolver.NewProgramStore(filepath.Join(t.TempDir(), "resolver.py"), "python3", st, testLogger())

	if got := ps.Version(); got != "N/A" {
		t.Errorf("Version with no program = %q, want N/A", got)
	}
}

func TestVersionNoMarker(t *testing.T) {
	st := newTestStore(t)
	path := filepath.Join(t.TempDir(), "resolver.py")
	if err := os.WriteFile(path, []byte("def resolve_link(r):\n    return r\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	ps := resolver.NewProgramStore(path, "python3", st, testLogger())

	if got := ps.Version(); got != "N/A" {
		t.Errorf("Version without marker = %q, want N/A", got)
	}
}

func TestCheckHealthMissingProgram(t *testing.T) {
	st := newTestStore(t)
	ps := resolver.NewProgramStore(filepath.Join(t.TempDir(), "resolver.py"), "sh", st, testLogger())

	if err := ps.CheckHealth(context.Background()); !errors.Is(err, resolver.ErrNotFound) {
		t.Errorf("CheckHealth = %v, want ErrNotFound", err)
	}
}

func TestCheckHealthRuntimeUnavailable(t *testing.T) {
	st := newTestStore(t)
	path := filepath.Join(t.TempDir(), "resolver.py")
	if err := os.WriteFile(path, []byte("# def resolve_link\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	ps := resolver.NewProgramStore(path, "resolvd-no-such-runtime", st, testLogger())

	if err := ps.CheckHealth(context.Background()); !errors.Is(err, resolver.ErrRuntimeUnavailable) {
		t.Errorf("CheckHealth = %v, want ErrRuntimeUnavailable", err)
	}
}

func TestCheckHealthReadyToken(t *testing.T) {
	st := newTestStore(t)
	path := filepath.Join(t.TempDir(), "resolver.sh")
	script := "#!/bin/sh\n# def resolve_link\nif [ \"$1\" = \"--check\" ]; then echo resolver_ready; fi\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	ps := resolver.NewProgramStore(path, "sh", st, testLogger())

	if err := ps.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth = %v, want nil", err)
	}
}

func TestCheckHealthNoToken(t *testing.T) {
	st := newTestStore(t)
	path := filepath.Join(t.TempDir(), "resolver.sh")
	script := "#!/bin/sh\n# def resolve_link\necho almost ready\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	ps := resolver.NewProgramStore(path, "sh", st, testLogger())

	if err := ps.CheckHealth(context.Background()); err == nil {
		t.Error("CheckHealth passed without the readiness token")
	}
}

func TestRestore(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "resolver.py")

	first := resolver.NewProgramStore(path, "python3", st, testLogger())
	ts := serveBody(t, http.StatusOK, programBody)
	if err := first.Install(context.Background(), ts.URL); err != nil {
		t.Fatalf("Install: %v", err)
	}

	// A fresh store over the same database sees the recorded source URL.
	second := resolver.NewProgramStore(path, "python3", st, testLogger())
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := second.SourceURL(); got != ts.URL {
		t.Errorf("restored SourceURL = %q, want %q", got, ts.URL)
	}
}
