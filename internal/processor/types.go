package processor

import "squish/internal/optimizer"

type Options struct {
	InPlace   bool
	OutputDir string
	// Tools is the enabled-tools map handed to every request.
	Tools   map[string]bool
	Workers int
}

type Job struct {
	Path    string
	RelPath string
	Display string
}

// Report is the per-file outcome. Err is set when the file could not be
// optimized at all; tool failures only show up in Result.Steps.
type Report struct {
	Path           string
	Display        string
	Dest           string
	Err            error
	Result         optimizer.Result
	MetadataBefore int
	MetadataAfter  int
}

type Summary struct {
	Total       int
	Processed   int
	Optimized   int
	Errors      int
	BytesBefore int64
	BytesSaved  int64
}

type ProgressUpdate struct {
	TotalDelta      int
	ProcessedDelta  int
	OptimizedDelta  int
	ErrorDelta      int
	BytesSavedDelta int64
	File            string
}
