package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// StepResult records what one tool did to the working file. It exists for
// diagnostics; the final size comparison is what decides the outcome.
type StepResult struct {
	Tool       string
	Err        error
	Duration   time.Duration
	SizeBefore int64
	SizeAfter  int64
}

// Failed reports whether the tool exited with an error or timed out.
func (s StepResult) Failed() bool { return s.Err != nil }

// RunOptions controls a pipeline run.
type RunOptions struct {
	// Timeout bounds each tool. Zero means no limit.
	Timeout time.Duration
	// Observe, if set, is called after every step.
	Observe func(StepResult)
}

// Run executes tools one after another against workPath. A failing tool is
// recorded and the run moves on to the next one. A tool cut short by its
// timeout or by ctx has its changes to workPath rolled back. If ctx is
// cancelled the remaining tools are not started.
func Run(ctx context.Context, tools []Tool, workPath string, opts RunOptions) []StepResult {
	steps := make([]StepResult, 0, len(tools))
	for _, tool := range tools {
		if ctx.Err() != nil {
			break
		}
		step := runStep(ctx, tool, workPath, opts.Timeout)
		steps = append(steps, step)
		if opts.Observe != nil {
			opts.Observe(step)
		}
	}
	return steps
}

func runStep(ctx context.Context, tool Tool, workPath string, timeout time.Duration) StepResult {
	stepCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// A tool killed mid-write leaves a truncated file behind, so anything
	// that can be interrupted runs against a snapshot it can be rolled back to.
	var backup string
	if stepCtx.Done() != nil {
		if b, err := snapshot(workPath); err == nil {
			backup = b
			defer os.Remove(backup)
		}
	}

	step := StepResult{Tool: tool.Name(), SizeBefore: fileSize(workPath)}
	start := time.Now()
	err := tool.Execute(stepCtx)
	step.Duration = time.Since(start)

	if err != nil && stepCtx.Err() != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrToolTimeout) {
			err = fmt.Errorf("%s: %w", tool.Name(), ErrToolTimeout)
		}
		if backup != "" {
			if rerr := os.Rename(backup, workPath); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restore working copy: %w", rerr))
			}
		}
	}
	step.SizeAfter = fileSize(workPath)
	step.Err = err
	return step
}

// snapshot copies path to a sibling file and returns its name.
func snapshot(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	backup := path + ".prev"
	out, err := os.OpenFile(backup, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(backup)
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(backup)
		return "", err
	}
	return backup, nil
}

// fileSize returns -1 when the file cannot be stat'ed, which happens when a
// tool deletes or renames its input.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}
