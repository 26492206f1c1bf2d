package processor

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"

	"squish/pkg/imgutil"
)

var pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// countMetadata returns how many metadata items a file carries: EXIF tags
// for JPEG, text/time/EXIF chunks for PNG. Unreadable or unsupported files
// count as zero; the number is informational only.
func countMetadata(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	kind, err := imgutil.SniffReader(f)
	if err != nil {
		return 0
	}

	switch kind {
	case imgutil.KindJPEG:
		n, _ := countExifTags(f)
		return n
	case imgutil.KindPNG:
		n, _ := countPNGMetadata(f)
		return n
	default:
		return 0
	}
}

func countExifTags(rs io.ReadSeeker) (int, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	tags, _, err := exif.GetFlatExifDataUniversalSearchWithReadSeeker(rs, nil, true)
	if err != nil {
		if errorsIsNoExif(err) {
			return 0, nil
		}
		return 0, err
	}
	return len(tags), nil
}

func errorsIsNoExif(err error) bool {
	if errors.Is(err, exif.ErrNoExif) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no exif")
}

func countPNGMetadata(rs io.ReadSeeker) (int, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	br := bufio.NewReader(rs)
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return 0, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return 0, errors.New("invalid PNG signature")
	}

	count := 0
	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(br, head); err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, err
		}
		length := int64(binary.BigEndian.Uint32(head[:4]))
		switch string(head[4:]) {
		case "tEXt", "zTXt", "iTXt", "eXIf", "tIME":
			count++
		case "IEND":
			return count, nil
		}
		if _, err := br.Discard(int(length) + 4); err != nil {
			return count, err
		}
	}
}
