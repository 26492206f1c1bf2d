package imgutil

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// Kind identifies a supported image type.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindGIF
	KindSVG
)

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindGIF:
		return "gif"
	case KindSVG:
		return "svg"
	default:
		return "unknown"
	}
}

// HeaderSize is how many leading bytes SniffReader inspects. SVG needs more
// than the binary formats because the root element can follow a prolog.
const HeaderSize = 512

var (
	pngSig   = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig  = []byte{0xff, 0xd8, 0xff}
	gif87Sig = []byte("GIF87a")
	gif89Sig = []byte("GIF89a")
	utf8BOM  = []byte{0xef, 0xbb, 0xbf}
)

var errEmptyHeader = errors.New("empty header")

// DetectHeader inspects the leading bytes of a file for known signatures.
func DetectHeader(header []byte) (Kind, error) {
	if len(header) == 0 {
		return KindUnknown, errEmptyHeader
	}

	switch {
	case bytes.HasPrefix(header, jpegSig):
		return KindJPEG, nil
	case bytes.HasPrefix(header, pngSig):
		return KindPNG, nil
	case bytes.HasPrefix(header, gif87Sig), bytes.HasPrefix(header, gif89Sig):
		return KindGIF, nil
	case looksLikeSVG(header):
		return KindSVG, nil
	}

	return KindUnknown, nil
}

func looksLikeSVG(header []byte) bool {
	text := bytes.TrimPrefix(header, utf8BOM)
	text = bytes.TrimLeft(text, " \t\r\n")
	if len(text) == 0 || text[0] != '<' {
		return false
	}
	return bytes.Contains(bytes.ToLower(text), []byte("<svg"))
}

// SniffFile reads the head of a file to determine its type.
func SniffFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads up to HeaderSize bytes from r and determines its type.
// Files shorter than the header are fine; an empty reader is an error.
func SniffReader(r io.Reader) (Kind, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return KindUnknown, errEmptyHeader
		}
		return KindUnknown, err
	}

	return DetectHeader(header[:n])
}
