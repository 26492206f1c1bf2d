package optimizer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"squish/pkg/imgutil"
)

// stripTool removes metadata that does not affect rendering: EXIF, XMP and
// Photoshop/IPTC segments from JPEG, text and time chunks from PNG, and the
// ICC profile from both unless preserveICC is set. It runs in-process.
type stripTool struct {
	path        string
	preserveICC bool
}

func (t stripTool) Name() string { return Strip }

func (t stripTool) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kind, err := imgutil.SniffFile(t.path)
	if err != nil {
		return fmt.Errorf("strip: %w", err)
	}

	var rewrite func(io.Reader, io.Writer, bool) error
	switch kind {
	case imgutil.KindJPEG:
		rewrite = stripJPEG
	case imgutil.KindPNG:
		rewrite = stripPNG
	default:
		return fmt.Errorf("strip: unsupported kind %s", kind)
	}

	in, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("strip: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".strip-*"+filepath.Ext(t.path))
	if err != nil {
		return fmt.Errorf("strip: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := rewrite(in, tmp, t.preserveICC); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("strip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("strip: %w", err)
	}
	_ = in.Close()

	return replaceFile(tmp.Name(), t.path)
}

var pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// stripPNG copies the chunk stream, skipping ancillary metadata chunks.
// Each chunk is length(4) type(4) data(length) crc(4).
func stripPNG(r io.Reader, w io.Writer, preserveICC bool) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return err
	}
	if !bytes.Equal(sig, pngSignature) {
		return errors.New("invalid PNG signature")
	}
	if _, err := bw.Write(sig); err != nil {
		return err
	}

	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(br, head); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		rest := int64(binary.BigEndian.Uint32(head[:4])) + 4
		chunk := string(head[4:])

		dst := io.Writer(bw)
		if dropPNGChunk(chunk, preserveICC) {
			dst = io.Discard
		} else if _, err := bw.Write(head); err != nil {
			return err
		}
		if _, err := io.CopyN(dst, br, rest); err != nil {
			return err
		}
		if chunk == "IEND" {
			break
		}
	}

	return bw.Flush()
}

func dropPNGChunk(chunk string, preserveICC bool) bool {
	switch chunk {
	case "tEXt", "zTXt", "iTXt", "eXIf", "tIME":
		return true
	case "iCCP":
		return !preserveICC
	}
	return false
}

var (
	jpegExif      = []byte("Exif\x00\x00")
	jpegXMP       = []byte("http://ns.adobe.com/xap/1.0/\x00")
	jpegPhotoshop = []byte("Photoshop 3.0\x00")
	jpegICC       = []byte("ICC_PROFILE\x00")
)

const (
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerAPP1 = 0xe1
	markerAPP2 = 0xe2
	markerAPPD = 0xed
	markerTEM  = 0x01
	markerRST0 = 0xd0
	markerRST7 = 0xd7
)

// stripJPEG walks the marker segments up to the start of scan, dropping
// metadata APPn segments, then copies the entropy-coded data verbatim.
func stripJPEG(r io.Reader, w io.Writer, preserveICC bool) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	soi := make([]byte, 2)
	if _, err := io.ReadFull(br, soi); err != nil {
		return err
	}
	if soi[0] != 0xff || soi[1] != markerSOI {
		return errors.New("invalid JPEG SOI")
	}
	if _, err := bw.Write(soi); err != nil {
		return err
	}

	for {
		marker, err := nextMarker(br)
		if err != nil {
			return err
		}

		switch {
		case marker == markerEOI:
			if _, err := bw.Write([]byte{0xff, marker}); err != nil {
				return err
			}
			return bw.Flush()
		case marker == markerSOS:
			if _, err := bw.Write([]byte{0xff, marker}); err != nil {
				return err
			}
			if _, err := io.Copy(bw, br); err != nil {
				return err
			}
			return bw.Flush()
		case marker == markerTEM || (marker >= markerRST0 && marker <= markerRST7):
			// standalone markers carry no length
			if _, err := bw.Write([]byte{0xff, marker}); err != nil {
				return err
			}
			continue
		}

		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(br, lenBuf); err != nil {
			return err
		}
		segLen := int(binary.BigEndian.Uint16(lenBuf))
		if segLen < 2 {
			return errors.New("invalid JPEG segment length")
		}
		payload := make([]byte, segLen-2)
		if _, err := io.ReadFull(br, payload); err != nil {
			return err
		}

		if dropJPEGSegment(marker, payload, preserveICC) {
			continue
		}
		for _, part := range [][]byte{{0xff, marker}, lenBuf, payload} {
			if _, err := bw.Write(part); err != nil {
				return err
			}
		}
	}
}

// nextMarker skips to the next 0xFF and any fill bytes after it.
func nextMarker(br *bufio.Reader) (byte, error) {
	b, err := br.ReadByte()
	for err == nil && b != 0xff {
		b, err = br.ReadByte()
	}
	for err == nil && b == 0xff {
		b, err = br.ReadByte()
	}
	return b, err
}

func dropJPEGSegment(marker byte, payload []byte, preserveICC bool) bool {
	switch marker {
	case markerAPP1:
		return bytes.HasPrefix(payload, jpegExif) || bytes.HasPrefix(payload, jpegXMP)
	case markerAPPD:
		return bytes.HasPrefix(payload, jpegPhotoshop)
	case markerAPP2:
		return !preserveICC && bytes.HasPrefix(payload, jpegICC)
	}
	return false
}
