package optimizer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestRunSequentialOrder(t *testing.T) {
	work := filepath.Join(t.TempDir(), "w.png")
	writeFile(t, work, pngBytes(100))

	rec := &recorder{}
	tools := Select(".png", allEnabled(), fakeRegistry(rec, nil), work)
	steps := Run(context.Background(), tools, work, RunOptions{})

	want := []string{Optipng, Pngquant, Zopflipng, Pngcrush, Advpng, Strip}
	if got := rec.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invocation order = %v, want %v", got, want)
	}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
}

func TestRunEachToolSeesPreviousOutput(t *testing.T) {
	work := filepath.Join(t.TempDir(), "w.png")
	writeFile(t, work, pngBytes(100))

	appendByte := func(b byte) action {
		return func(_ context.Context, w string) error {
			data, err := os.ReadFile(w)
			if err != nil {
				return err
			}
			return os.WriteFile(w, append(data, b), 0o600)
		}
	}
	rec := &recorder{}
	reg := fakeRegistry(rec, map[string]action{
		Optipng:  appendByte('a'),
		Pngquant: appendByte('b'),
		Advpng:   appendByte('c'),
	})

	steps := Run(context.Background(), Select(".png", allEnabled(), reg, work), work, RunOptions{})

	data := readFile(t, work)
	if got := string(data[len(data)-3:]); got != "abc" {
		t.Fatalf("expected tools to compose in order, tail = %q", got)
	}
	if steps[0].SizeBefore != 100 || steps[0].SizeAfter != 101 {
		t.Fatalf("unexpected sizes for first step: %+v", steps[0])
	}
}

func TestRunContinuesAfterFailure(t *testing.T) {
	work := filepath.Join(t.TempDir(), "w.jpg")
	writeFile(t, work, jpegBytes(100))

	boom := errors.New("boom")
	rec := &recorder{}
	reg := fakeRegistry(rec, map[string]action{
		JpegRecompress: func(context.Context, string) error { return boom },
		Jpegoptim:      shrinkTo(jpegBytes(60)),
	})

	var observed []string
	steps := Run(context.Background(), Select(".jpg", allEnabled(), reg, work), work, RunOptions{
		Observe: func(s StepResult) { observed = append(observed, s.Tool) },
	})

	if !errors.Is(steps[0].Err, boom) {
		t.Fatalf("expected first step error to be recorded, got %v", steps[0].Err)
	}
	if steps[1].Failed() || steps[1].SizeAfter != 60 {
		t.Fatalf("expected second step to run after the failure: %+v", steps[1])
	}
	if !reflect.DeepEqual(observed, rec.Calls()) {
		t.Fatalf("observer saw %v, tools ran %v", observed, rec.Calls())
	}
}

func TestRunEmptyIsNoop(t *testing.T) {
	work := filepath.Join(t.TempDir(), "w.bmp")
	writeFile(t, work, []byte("bitmap"))

	if steps := Run(context.Background(), nil, work, RunOptions{}); len(steps) != 0 {
		t.Fatalf("expected no steps, got %v", steps)
	}
	if string(readFile(t, work)) != "bitmap" {
		t.Fatalf("working file changed")
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	work := filepath.Join(t.TempDir(), "w.png")
	writeFile(t, work, pngBytes(100))

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	reg := fakeRegistry(rec, map[string]action{
		Pngquant: func(context.Context, string) error {
			cancel()
			return nil
		},
	})

	Run(ctx, Select(".png", allEnabled(), reg, work), work, RunOptions{})

	if got := rec.Calls(); !reflect.DeepEqual(got, []string{Optipng, Pngquant}) {
		t.Fatalf("expected run to stop after cancellation, ran %v", got)
	}
}

func TestRunTimeout(t *testing.T) {
	work := filepath.Join(t.TempDir(), "w.gif")
	writeFile(t, work, []byte("GIF89a"))

	tools := []Tool{fakeTool{name: Gifsicle, run: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}}}

	start := time.Now()
	steps := Run(context.Background(), tools, work, RunOptions{Timeout: 30 * time.Millisecond})
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout was not applied")
	}
	if !errors.Is(steps[0].Err, ErrToolTimeout) {
		t.Fatalf("expected ErrToolTimeout, got %v", steps[0].Err)
	}
}

func TestRunTimeoutRestoresWorkingCopy(t *testing.T) {
	dir := t.TempDir()
	work := filepath.Join(dir, "w.gif")
	original := append([]byte("GIF89a"), bytes.Repeat([]byte{1}, 994)...)
	writeFile(t, work, original)

	var next []string
	tools := []Tool{
		fakeTool{name: Gifsicle, run: func(ctx context.Context) error {
			if err := os.WriteFile(work, []byte("GIF89a\x01\x00"), 0o600); err != nil {
				return err
			}
			<-ctx.Done()
			return ctx.Err()
		}},
		fakeTool{name: Strip, run: func(context.Context) error {
			next = append(next, string(readFile(t, work)))
			return nil
		}},
	}

	steps := Run(context.Background(), tools, work, RunOptions{Timeout: 50 * time.Millisecond})

	if !errors.Is(steps[0].Err, ErrToolTimeout) {
		t.Fatalf("expected ErrToolTimeout, got %v", steps[0].Err)
	}
	if steps[0].SizeAfter != int64(len(original)) {
		t.Fatalf("size after timed out step = %d, want %d", steps[0].SizeAfter, len(original))
	}
	if len(next) != 1 || next[0] != string(original) {
		t.Fatalf("next tool did not see the restored working copy")
	}
	if !bytes.Equal(readFile(t, work), original) {
		t.Fatalf("working copy was not restored")
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected only the working copy to remain, got %v (%v)", entries, err)
	}
}

func TestRunCancelRestoresWorkingCopy(t *testing.T) {
	work := filepath.Join(t.TempDir(), "w.jpg")
	original := jpegBytes(400)
	writeFile(t, work, original)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tools := []Tool{fakeTool{name: Mozjpeg, run: func(ctx context.Context) error {
		if err := os.WriteFile(work, jpegBytes(10), 0o600); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	}}}

	steps := Run(ctx, tools, work, RunOptions{})

	if !errors.Is(steps[0].Err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", steps[0].Err)
	}
	if !bytes.Equal(readFile(t, work), original) {
		t.Fatalf("working copy was not restored after cancellation")
	}
}

func TestRunKeepsOutputOfFailedTool(t *testing.T) {
	work := filepath.Join(t.TempDir(), "w.jpg")
	writeFile(t, work, jpegBytes(400))

	tools := []Tool{fakeTool{name: Jpegoptim, run: func(context.Context) error {
		if err := os.WriteFile(work, jpegBytes(300), 0o600); err != nil {
			return err
		}
		return errors.New("exit status 1")
	}}}

	steps := Run(context.Background(), tools, work, RunOptions{Timeout: time.Minute})

	if !steps[0].Failed() || steps[0].SizeAfter != 300 {
		t.Fatalf("unexpected step: %+v", steps[0])
	}
}
