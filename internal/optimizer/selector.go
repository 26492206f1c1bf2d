package optimizer

import "strings"

// chains lists, per extension, every tool that may run and the order it runs
// in. Each tool rewrites the same working file, so later tools see the output
// of earlier ones: lossy quantization goes before lossless recompression.
var chains = map[string][]string{
	".png": {Optipng, Pngquant, Zopflipng, Pngcrush, Advpng, Strip},
	".jpg": {JpegRecompress, Jpegoptim, Mozjpeg, Strip},
	".gif": {Gifsicle},
	".svg": {Svgo},
}

// Extensions lists the extensions that have a tool chain.
func Extensions() []string {
	return []string{".png", ".jpg", ".gif", ".svg"}
}

// Supported reports whether ext has a tool chain.
func Supported(ext string) bool {
	_, ok := chains[strings.ToLower(ext)]
	return ok
}

// Chain returns the ordered tool names for ext, regardless of which are
// enabled. Unknown extensions yield nil.
func Chain(ext string) []string {
	names := chains[strings.ToLower(ext)]
	if names == nil {
		return nil
	}
	return append([]string(nil), names...)
}

// ToolNames returns every tool name that appears in some chain, each once.
func ToolNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ext := range Extensions() {
		for _, name := range chains[ext] {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Select builds the tools to run on workPath for a file with extension ext.
// Only names set to true in enabled are included, in chain order. Names that
// are disabled or missing from the registry are skipped.
func Select(ext string, enabled map[string]bool, registry Registry, workPath string) []Tool {
	var tools []Tool
	for _, name := range chains[strings.ToLower(ext)] {
		if !enabled[name] {
			continue
		}
		factory, ok := registry[name]
		if !ok || factory == nil {
			continue
		}
		tools = append(tools, factory(workPath))
	}
	return tools
}
