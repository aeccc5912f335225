package httphandler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jgivc/fetchbot/internal/common"
)

const rangeUnit = "bytes="

// byteRange is an inclusive span of a file.
type byteRange struct {
	start, end int64
	partial    bool
}

func (b byteRange) length() int64 {
	return b.end - b.start + 1
}

// parseRange reads a single "bytes=start-end" span. A missing start means 0
// and a missing end means the last byte. Headers it cannot read fall back to
// the whole file.
func parseRange(header string, size int64) (byteRange, error) {
	full := byteRange{start: 0, end: size - 1}

	spec, ok := strings.CutPrefix(strings.TrimSpace(header), rangeUnit)
	if !ok {
		return full, nil
	}

	spec, _, _ = strings.Cut(spec, ",")

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return full, nil
	}

	r := byteRange{start: 0, end: size - 1, partial: true}

	if startStr != "" {
		n, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || n < 0 {
			return full, nil
		}

		r.start = n
	}

	if endStr != "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return full, nil
		}

		r.end = min(n, size-1)
	}

	if r.start >= size || r.start > r.end {
		return r, common.ErrRangeNotSatisfiable
	}

	return r, nil
}

// contentDisposition encodes name per RFC 5987.
func contentDisposition(name string) string {
	var b strings.Builder

	b.WriteString("attachment; filename*=UTF-8''")

	for i := 0; i < len(name); i++ {
		c := name[i]
		if isAttrChar(c) {
			b.WriteByte(c)

			continue
		}

		fmt.Fprintf(&b, "%%%02X", c)
	}

	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}

	return strings.IndexByte("-._~", c) >= 0
}
