package static

import (
	"fmt"
	"strconv"
	"strings"
)

// RangeError describes a Range header that cannot be served.
type RangeError struct {
	Header string
	Size   int64
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range %q of %d bytes: %s", e.Header, e.Size, e.Reason)
}

// ParseRange parses a single range "bytes=start-[last]" or "bytes=-suffix" against a file of size bytes.
// It returns the half open interval [start, end) to send.
func ParseRange(header string, size int64) (start, end int64, err error) {
	bad := func(reason string) (int64, int64, error) {
		return 0, 0, &RangeError{Header: header, Size: size, Reason: reason}
	}

	set, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return bad("unit is not bytes")
	}

	if strings.Contains(set, ",") {
		return bad("multiple ranges are not supported")
	}

	first, last, ok := strings.Cut(strings.TrimSpace(set), "-")
	if !ok {
		return bad("missing '-'")
	}

	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return bad("invalid suffix length")
		}

		if size == 0 {
			return bad("empty file")
		}

		return max(size-n, 0), size, nil
	}

	start, err = strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return bad("invalid start")
	}

	end = size
	if last != "" {
		l, err := strconv.ParseInt(last, 10, 64)
		if err != nil || l < start {
			return bad("invalid end")
		}

		if l < size-1 {
			end = l + 1
		}
	}

	if start >= size {
		return bad("start beyond end of file")
	}

	return start, end, nil
}
