// Package bytesize parses and formats human-readable byte quantities used in
// configuration, such as "256Mi" or "1GB".
package bytesize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a quantity of bytes. It decodes from plain numbers, binary units
// (Ki, Mi, Gi, Ti with optional B) and decimal units (K, M, G, T with optional B),
// case-insensitively.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var (
	// ErrEmpty is returned for blank input.
	ErrEmpty = errors.New("empty byte size")
	// ErrOverflow is returned when the value does not fit in an int64.
	ErrOverflow = errors.New("byte size overflows int64")
)

var pattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var multipliers = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB, "m": MB, "mb": MB, "g": GB, "gb": GB, "t": TB, "tb": TB,
	"ki": KiB, "kib": KiB, "mi": MiB, "mib": MiB, "gi": GiB, "gib": GiB, "ti": TiB, "tib": TiB,
}

// binary units tried when formatting, largest first
var formatUnits = []struct {
	suffix string
	size   ByteSize
}{
	{"Ti", TiB}, {"Gi", GiB}, {"Mi", MiB}, {"Ki", KiB},
}

// Parse parses s into a ByteSize. Values larger than math.MaxInt64 are
// rejected because the tracker ledger is signed.
func Parse(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, ErrEmpty
	}

	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	mult, ok := multipliers[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q", m[2])
	}

	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size %q: %w", s, err)
	}
	v := num * float64(mult)
	if v >= math.MaxInt64 {
		return 0, fmt.Errorf("%q: %w", s, ErrOverflow)
	}

	// Integral inputs keep exact arithmetic.
	if !strings.Contains(m[1], ".") {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size %q: %w", s, err)
		}
		return ByteSize(n) * mult, nil
	}
	return ByteSize(v), nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) ByteSize {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return b
}

// UnmarshalText implements encoding.TextUnmarshaler so ByteSize can be decoded
// by mapstructure, yaml and json.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText writes the shortest exact form, e.g. "256Mi" or "1000".
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range formatUnits {
		if b >= u.size && b%u.size == 0 {
			return []byte(strconv.FormatUint(uint64(b/u.size), 10) + u.suffix), nil
		}
	}
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

// String returns an approximate human-readable form, e.g. "1.50MiB".
func (b ByteSize) String() string {
	for _, u := range formatUnits {
		if b >= u.size {
			return fmt.Sprintf("%.2f%sB", float64(b)/float64(u.size), u.suffix)
		}
	}
	return fmt.Sprintf("%dB", uint64(b))
}

// Int64 returns the size as an int64.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
