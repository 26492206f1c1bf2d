// Package optimizer shrinks a single image file by running it through a
// chain of format-specific tools on a private working copy, then keeping
// whichever of the original or the optimized bytes is smaller.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"squish/pkg/imgutil"
)

// Request describes one file to optimize. Use NewRequest to build one.
type Request struct {
	src   string
	dest  string
	tools map[string]bool
}

// NewRequest returns a request for src. An empty dest means src is
// overwritten. The tools map is copied.
func NewRequest(src, dest string, tools map[string]bool) Request {
	if dest == "" {
		dest = src
	}
	enabled := make(map[string]bool, len(tools))
	for name, on := range tools {
		enabled[name] = on
	}
	return Request{src: src, dest: dest, tools: enabled}
}

func (r Request) Src() string  { return r.src }
func (r Request) Dest() string { return r.dest }
func (r Request) Ext() string  { return filepath.Ext(r.src) }

// Enabled reports whether the named tool is switched on for this request.
func (r Request) Enabled(name string) bool { return r.tools[name] }

// Result is the outcome of one Optimize call.
type Result struct {
	IsOptimized   bool
	OriginalSize  int64
	OptimizedSize int64
	// DiffSize is OriginalSize - OptimizedSize and may be negative.
	DiffSize int64
	// DiffPercent is 100*DiffSize/OriginalSize rounded to one decimal.
	DiffPercent float64
	Steps       []StepResult
}

// Options configures an Optimizer.
type Options struct {
	Registry Registry
	// TempDir holds working copies. Empty means os.TempDir().
	TempDir string
	// Timeout bounds each tool invocation. Zero means no limit.
	Timeout time.Duration
	Logger  *slog.Logger
	// Observe, if set, replaces the default step logging.
	Observe func(Request, StepResult)
}

// Optimizer runs requests. It holds no per-request state and is safe for
// concurrent use by multiple goroutines.
type Optimizer struct {
	registry Registry
	tempDir  string
	timeout  time.Duration
	logger   *slog.Logger
	observe  func(Request, StepResult)
}

func New(opts Options) *Optimizer {
	o := &Optimizer{
		registry: opts.Registry,
		tempDir:  opts.TempDir,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		observe:  opts.Observe,
	}
	if o.registry == nil {
		o.registry = DefaultRegistry(nil, false)
	}
	if o.tempDir == "" {
		o.tempDir = os.TempDir()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.observe == nil {
		o.observe = o.logStep
	}
	return o
}

// Optimize runs the tool chain for req and writes the smaller of the
// original and optimized bytes to the destination. Tool failures never
// surface as errors; only I/O failures around the working copy and the
// destination do.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (Result, error) {
	srcInfo, err := os.Stat(req.src)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	if !srcInfo.Mode().IsRegular() {
		return Result{}, fmt.Errorf("%w: %s is not a regular file", ErrSourceUnreadable, req.src)
	}

	work, srcKind, err := o.createWorkingCopy(req.src)
	if err != nil {
		return Result{}, err
	}
	defer o.removeWorkingCopy(work)

	tools := Select(req.Ext(), req.tools, o.registry, work)
	steps := Run(ctx, tools, work, RunOptions{
		Timeout: o.timeout,
		Observe: func(step StepResult) { o.observe(req, step) },
	})

	originalSize := srcInfo.Size()
	optimizedSize := originalSize
	usable := false
	if workInfo, err := os.Stat(work); err == nil {
		optimizedSize = workInfo.Size()
		usable = intact(work, srcKind, optimizedSize)
	} else {
		o.logger.Debug("working copy vanished during optimization", "file", req.src, tint.Err(err))
	}

	diffSize := originalSize - optimizedSize
	res := Result{
		OriginalSize:  originalSize,
		OptimizedSize: optimizedSize,
		DiffSize:      diffSize,
		DiffPercent:   percent(diffSize, originalSize),
		Steps:         steps,
	}

	from, fromErr := req.src, ErrSourceUnreadable
	if diffSize > 0 && usable {
		from, fromErr = work, ErrWorkingCopy
		res.IsOptimized = true
	}
	if err := commit(from, fromErr, req.dest, srcInfo.Mode().Perm()); err != nil {
		return Result{}, err
	}

	return res, nil
}

// createWorkingCopy copies src into a uniquely named file in the temp dir
// with the same extension, and sniffs the copied header.
func (o *Optimizer) createWorkingCopy(src string) (string, imgutil.Kind, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", imgutil.KindUnknown, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	defer in.Close()

	work := filepath.Join(o.tempDir, "squish-"+uuid.NewString()+filepath.Ext(src))
	out, err := os.OpenFile(work, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", imgutil.KindUnknown, fmt.Errorf("%w: %w", ErrWorkingCopy, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(work)
		return "", imgutil.KindUnknown, fmt.Errorf("%w: copy %s: %w", ErrWorkingCopy, src, err)
	}

	kind := imgutil.KindUnknown
	if _, err := out.Seek(0, io.SeekStart); err == nil {
		kind, _ = imgutil.SniffReader(out)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(work)
		return "", imgutil.KindUnknown, fmt.Errorf("%w: %w", ErrWorkingCopy, err)
	}
	return work, kind, nil
}

func (o *Optimizer) removeWorkingCopy(work string) {
	if err := os.Remove(work); err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.logger.Warn("failed to remove working copy", "path", work, tint.Err(err))
	}
}

func (o *Optimizer) logStep(req Request, step StepResult) {
	if step.Err != nil {
		o.logger.Debug("optimizer step failed",
			"file", req.src,
			"tool", step.Tool,
			"duration", step.Duration,
			tint.Err(step.Err),
		)
		return
	}
	o.logger.Debug("optimizer step finished",
		"file", req.src,
		"tool", step.Tool,
		"before", step.SizeBefore,
		"after", step.SizeAfter,
		"duration", step.Duration,
	)
}

// intact rejects a working copy that no longer looks like the image it
// started as: empty, or sniffed as a different known kind.
func intact(work string, srcKind imgutil.Kind, size int64) bool {
	if size <= 0 {
		return false
	}
	if srcKind == imgutil.KindUnknown {
		return true
	}
	kind, err := imgutil.SniffFile(work)
	if err != nil {
		return false
	}
	return kind == srcKind
}

// commit writes the bytes of from to dest through a sibling temp file so
// dest never holds a partial write. A failure to open from is wrapped with
// fromErr.
func commit(from string, fromErr error, dest string, perm fs.FileMode) error {
	in, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("%w: %w", fromErr, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".squish-*"+filepath.Ext(dest))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrDestinationUnwritable, dest, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}

	if err := replaceFile(tmp.Name(), dest); err != nil {
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}
	return nil
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

// percent rounds half up to one decimal place: 33.35 becomes 33.4 and
// -0.05 becomes 0.
func percent(diff, total int64) float64 {
	if total == 0 {
		return 0
	}
	v := 100 * float64(diff) / float64(total)
	return math.Floor(v*10+0.5) / 10
}
