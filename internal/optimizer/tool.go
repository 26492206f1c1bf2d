package optimizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tool is one step of an optimization chain. Execute rewrites the working
// file it was constructed for and returns once it is done with it.
type Tool interface {
	Name() string
	Execute(ctx context.Context) error
}

// ToolSpec describes an external optimizer invocation against one working
// file. It is a pure description until Execute is called.
type ToolSpec struct {
	ToolName string
	Path     string
	Args     []string
}

func (s ToolSpec) Name() string { return s.ToolName }

// waitDelay bounds how long Execute waits for output pipes after the process
// has been killed by a cancelled context.
const waitDelay = 5 * time.Second

// stderrTail is the most stderr kept for the error message of a failed run.
const stderrTail = 512

// Execute spawns the executable and waits for it to exit. Output is not
// interpreted; stderr is only used to describe a failure.
func (s ToolSpec) Execute(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.Path, s.Args...)
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", s.ToolName, ErrToolTimeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > stderrTail {
			msg = msg[len(msg)-stderrTail:]
		}
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", s.ToolName, err, msg)
		}
		return fmt.Errorf("%s: %w", s.ToolName, err)
	}
	return nil
}

// Factory builds a Tool bound to a working file path.
type Factory func(workPath string) Tool

// Registry maps a tool name to the factory that builds it. Callers pass it
// explicitly so tests can swap real executables for fakes.
type Registry map[string]Factory

// Resolver returns the executable to run for a tool name.
type Resolver func(name string) string

// Tool names, also the keys of the enabled-tools map.
const (
	Optipng        = "optipng"
	Pngquant       = "pngquant"
	Zopflipng      = "zopflipng"
	Pngcrush       = "pngcrush"
	Advpng         = "advpng"
	JpegRecompress = "jpeg-recompress"
	Jpegoptim      = "jpegoptim"
	Mozjpeg        = "mozjpeg"
	Gifsicle       = "gifsicle"
	Svgo           = "svgo"
	Strip          = "strip"
)

// DefaultBinaries holds the executable name looked up on $PATH when no
// explicit path is configured.
var DefaultBinaries = map[string]string{
	Optipng:        "optipng",
	Pngquant:       "pngquant",
	Zopflipng:      "zopflipng",
	Pngcrush:       "pngcrush",
	Advpng:         "advpng",
	JpegRecompress: "jpeg-recompress",
	Jpegoptim:      "jpegoptim",
	Mozjpeg:        "cjpeg",
	Gifsicle:       "gifsicle",
	Svgo:           "svgo",
}

// DefaultResolver resolves every tool to its conventional binary name.
func DefaultResolver(name string) string {
	return DefaultBinaries[name]
}

// DefaultRegistry returns the registry of every supported tool. resolve may
// be nil, in which case DefaultResolver is used.
func DefaultRegistry(resolve Resolver, preserveICC bool) Registry {
	if resolve == nil {
		resolve = DefaultResolver
	}
	external := func(name string, args func(w string) []string) Factory {
		return func(w string) Tool {
			return ToolSpec{ToolName: name, Path: resolve(name), Args: args(w)}
		}
	}

	return Registry{
		Optipng:        external(Optipng, optipngArgs),
		Pngquant:       external(Pngquant, pngquantArgs),
		Zopflipng:      external(Zopflipng, zopflipngArgs),
		Pngcrush:       external(Pngcrush, pngcrushArgs),
		Advpng:         external(Advpng, advpngArgs),
		JpegRecompress: external(JpegRecompress, jpegRecompressArgs),
		Jpegoptim:      external(Jpegoptim, jpegoptimArgs),
		Mozjpeg:        external(Mozjpeg, mozjpegArgs),
		Gifsicle:       external(Gifsicle, gifsicleArgs),
		Svgo:           external(Svgo, svgoArgs),
		Strip: func(w string) Tool {
			return stripTool{path: w, preserveICC: preserveICC}
		},
	}
}

func optipngArgs(w string) []string {
	return []string{"-i", "1", "-strip", "all", "-fix", "-o7", "-force", w}
}

// pngquant writes <name>.png next to the input; with --ext=.png and --force
// that is the input itself.
func pngquantArgs(w string) []string {
	return []string{"--ext=.png", "--speed=1", "--force", "256", w}
}

func zopflipngArgs(w string) []string {
	return []string{
		"-m",
		"--iterations=500",
		"--splitting=3",
		"--filters=01234mepb",
		"--lossy_8bit",
		"--lossy_transparent",
		"-y",
		w, w,
	}
}

func pngcrushArgs(w string) []string {
	return []string{"-rem", "alla", "-rem", "text", "-brute", "-reduce", "-ow", w}
}

func advpngArgs(w string) []string {
	return []string{"--recompress", "--shrink-extra", w}
}

func jpegRecompressArgs(w string) []string {
	return []string{"--strip", "--quality", "medium", "--min", "40", "--max", "80", w, w}
}

func jpegoptimArgs(w string) []string {
	return []string{"--override", "--strip-all", "--strip-iptc", "--strip-icc", "--all-progressive", w}
}

func mozjpegArgs(w string) []string {
	return []string{"-optimize", "-progressive", "-outfile", w, w}
}

func gifsicleArgs(w string) []string {
	return []string{"--optimize", "--output", w, w}
}

func svgoArgs(w string) []string {
	return []string{"--input", w, "--output", w}
}
