package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/lmittmann/tint"

	"squish/internal/optimizer"
)

// Optimizer is the single-file operation the batch runs for every job.
type Optimizer interface {
	Optimize(ctx context.Context, req optimizer.Request) (optimizer.Result, error)
}

// Run optimizes root, a single file or a directory tree, using a pool of
// workers. Directory walks only pick up files with a supported extension; a
// single file is always handed to the optimizer, which copies it unchanged
// when nothing applies.
func Run(ctx context.Context, root string, opt Optimizer, opts Options, updates chan<- ProgressUpdate) (Summary, []Report, error) {
	summary := Summary{}
	var reports []Report

	info, err := os.Stat(root)
	if err != nil {
		return summary, nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return summary, nil, err
	}

	if !opts.InPlace && opts.OutputDir == "" {
		return summary, nil, fmt.Errorf("output directory required when not optimizing in place")
	}

	var outputAbs string
	var outputInsideRoot bool
	if !opts.InPlace {
		if absOut, outErr := filepath.Abs(opts.OutputDir); outErr == nil {
			outputAbs = absOut
			absRootClean := filepath.Clean(absRoot)
			outputClean := filepath.Clean(outputAbs)
			if info.IsDir() && outputClean != absRootClean && isWithin(outputClean, absRootClean) {
				outputInsideRoot = true
			}
		}
	}

	jobs := make(chan Job)
	results := make(chan Report)

	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			worker(ctx, jobs, results, opt, opts, updates)
		}()
	}

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rep := range results {
			summary.Total++
			update := ProgressUpdate{File: rep.Display}
			if rep.Err != nil {
				summary.Errors++
				update.ErrorDelta = 1
			} else {
				summary.Processed++
				summary.BytesBefore += rep.Result.OriginalSize
				update.ProcessedDelta = 1
				if rep.Result.IsOptimized {
					summary.Optimized++
					summary.BytesSaved += rep.Result.DiffSize
					update.OptimizedDelta = 1
					update.BytesSavedDelta = rep.Result.DiffSize
				}
			}
			if updates != nil {
				updates <- update
			}
			reports = append(reports, rep)
		}
	}()

	producerErr := make(chan error, 1)
	go func() {
		defer close(jobs)

		sendJob := func(job Job) error {
			select {
			case jobs <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
			if updates != nil {
				updates <- ProgressUpdate{TotalDelta: 1}
			}
			return nil
		}

		if !info.IsDir() {
			job := Job{
				Path:    absRoot,
				RelPath: filepath.Base(absRoot),
				Display: filepath.Base(absRoot),
			}
			producerErr <- sendJob(job)
			return
		}

		fsys := os.DirFS(absRoot)
		err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if outputInsideRoot && isWithin(filepath.Join(absRoot, path), outputAbs) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !optimizer.Supported(filepath.Ext(path)) {
				return nil
			}

			return sendJob(Job{
				Path:    filepath.Join(absRoot, filepath.FromSlash(path)),
				RelPath: filepath.FromSlash(path),
				Display: path,
			})
		})
		producerErr <- err
	}()

	wg.Wait()
	close(results)
	<-collectorDone

	sort.Slice(reports, func(i, j int) bool { return reports[i].Display < reports[j].Display })

	if err := <-producerErr; err != nil && !errors.Is(err, context.Canceled) {
		return summary, reports, err
	}

	return summary, reports, nil
}

func worker(ctx context.Context, jobs <-chan Job, results chan<- Report, opt Optimizer, opts Options, updates chan<- ProgressUpdate) {
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- Report{Path: job.Path, Display: job.Display, Err: err}
			continue
		}
		results <- optimizeJob(ctx, job, opt, opts)
	}
}

func optimizeJob(ctx context.Context, job Job, opt Optimizer, opts Options) Report {
	rep := Report{Path: job.Path, Display: job.Display}

	dest, destDir, err := resolveDestination(job, opts)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Dest = dest

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		rep.Err = err
		return rep
	}

	rep.MetadataBefore = countMetadata(job.Path)

	res, err := opt.Optimize(ctx, optimizer.NewRequest(job.Path, dest, opts.Tools))
	if err != nil {
		slog.Error("Failed to optimize", "file", job.Display, tint.Err(err))
		rep.Err = err
		return rep
	}
	rep.Result = res
	rep.MetadataAfter = countMetadata(dest)

	slog.Debug("Optimized file",
		"file", job.Display,
		"optimized", res.IsOptimized,
		"original", res.OriginalSize,
		"result", res.OptimizedSize,
		"percent", res.DiffPercent,
	)
	return rep
}

func resolveDestination(job Job, opts Options) (string, string, error) {
	if opts.InPlace {
		return job.Path, filepath.Dir(job.Path), nil
	}

	destPath := filepath.Join(opts.OutputDir, job.RelPath)
	if absDest, err := filepath.Abs(destPath); err == nil && filepath.Clean(absDest) == filepath.Clean(job.Path) {
		return "", "", fmt.Errorf("output path resolves to input path; use --inplace or a different --output")
	}

	return destPath, filepath.Dir(destPath), nil
}

func isWithin(path string, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
