package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Binary size units.
const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
	GiB int64 = 1 << 30
	TiB int64 = 1 << 40
)

// Day is the unit used for retention settings.
const Day = 24 * time.Hour

var (
	// ErrInvalidSize is returned by ParseSize.
	ErrInvalidSize = errors.New("invalid size")

	// ErrInvalidDuration is returned by ParseDuration.
	ErrInvalidDuration = errors.New("invalid duration")
)

// ParseSize parses sizes such as "50MiB", "10 MiB" or "1GB". Bare K/M/G/T
// suffixes are read as binary units; "KB", "MB" keep their SI meaning.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: negative %q", ErrInvalidSize, s)
	}
	if n := len(s); n > 0 && strings.ContainsRune("kKmMgGtT", rune(s[n-1])) {
		s += "iB"
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return int64(n), nil
}

// FormatSize renders bytes with binary units, e.g. "1.5 MiB".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// ParseDuration accepts Go durations plus a day suffix: "1d", "7d", "1.5d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: negative %q", ErrInvalidDuration, s)
	}
	if days, ok := strings.CutSuffix(strings.ToLower(s), "d"); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(days), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		return time.Duration(v * float64(Day)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return d, nil
}
