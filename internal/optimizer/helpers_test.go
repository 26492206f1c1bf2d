package optimizer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type fakeTool struct {
	name string
	run  func(ctx context.Context) error
}

func (f fakeTool) Name() string { return f.name }

func (f fakeTool) Execute(ctx context.Context) error { return f.run(ctx) }

// recorder keeps the order tools were executed in and the working paths
// they were built for.
type recorder struct {
	mu    sync.Mutex
	calls []string
	paths []string
}

func (r *recorder) built(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) ran(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

type action func(ctx context.Context, workPath string) error

// fakeRegistry builds a registry with an entry for every known tool. Tools
// without an action succeed without touching the file.
func fakeRegistry(rec *recorder, actions map[string]action) Registry {
	reg := Registry{}
	for _, name := range ToolNames() {
		name := name
		reg[name] = func(w string) Tool {
			rec.built(w)
			return fakeTool{name: name, run: func(ctx context.Context) error {
				rec.ran(name)
				if act := actions[name]; act != nil {
					return act(ctx, w)
				}
				return nil
			}}
		}
	}
	return reg
}

func allEnabled() map[string]bool {
	enabled := map[string]bool{}
	for _, name := range ToolNames() {
		enabled[name] = true
	}
	return enabled
}

// pngBytes returns n bytes that start with the PNG signature.
func pngBytes(n int) []byte {
	buf := append([]byte{}, pngSignature...)
	if n < len(buf) {
		return buf[:n]
	}
	return append(buf, bytes.Repeat([]byte{'p'}, n-len(buf))...)
}

// jpegBytes returns n bytes that start with a JPEG SOI marker.
func jpegBytes(n int) []byte {
	buf := []byte{0xff, 0xd8, 0xff, 0xe0}
	if n < len(buf) {
		return buf[:n]
	}
	return append(buf, bytes.Repeat([]byte{'j'}, n-len(buf))...)
}

func shrinkTo(data []byte) action {
	return func(_ context.Context, w string) error {
		return os.WriteFile(w, data, 0o600)
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

// assertEmptyDir fails if dir holds any entry, which for a temp dir means a
// working copy leaked.
func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected %s to be empty, found %v", dir, names)
	}
}

func newTestOptimizer(t *testing.T, reg Registry) (*Optimizer, string) {
	t.Helper()
	tempDir := filepath.Join(t.TempDir(), "work")
	if err := os.Mkdir(tempDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return New(Options{Registry: reg, TempDir: tempDir}), tempDir
}
