package imgutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectHeader(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Kind
	}{
		{"png", []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0, 0}, KindPNG},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, KindJPEG},
		{"gif87", []byte("GIF87a\x01\x00"), KindGIF},
		{"gif89", []byte("GIF89a"), KindGIF},
		{"svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`), KindSVG},
		{"svg with prolog", []byte("\xef\xbb\xbf  <?xml version=\"1.0\"?>\n<!DOCTYPE svg>\n<SVG>"), KindSVG},
		{"html", []byte("<html><body></body></html>"), KindUnknown},
		{"bmp", []byte("BM\x00\x00\x00\x00"), KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DetectHeader(tc.header)
			if err != nil {
				t.Fatalf("DetectHeader: %v", err)
			}
			if got != tc.want {
				t.Fatalf("DetectHeader = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDetectHeaderEmpty(t *testing.T) {
	if _, err := DetectHeader(nil); err == nil {
		t.Fatalf("expected error for empty header")
	}
}

func TestSniffReaderShortInput(t *testing.T) {
	kind, err := SniffReader(bytes.NewReader([]byte("GIF89a")))
	if err != nil || kind != KindGIF {
		t.Fatalf("SniffReader = %s, %v", kind, err)
	}
	if _, err := SniffReader(bytes.NewReader(nil)); err == nil {
		t.Fatalf("expected error for empty reader")
	}
}

func TestSniffFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xdb, 0x00}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	kind, err := SniffFile(path)
	if err != nil || kind != KindJPEG {
		t.Fatalf("SniffFile = %s, %v", kind, err)
	}
}
