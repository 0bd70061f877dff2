package output

import (
	"fmt"
	"time"

	"github.com/marmos91/dittocache/internal/bytesize"
)

// Bytes formats n as a binary quantity, e.g. "1.50MiB". Negative values
// are printed with a sign.
func Bytes(n int64) string {
	if n < 0 {
		return "-" + bytesize.ByteSize(-n).String()
	}
	return bytesize.ByteSize(n).String()
}

// Usage formats used against limit, e.g. "12.00MiB / 64.00MiB (18.8%)".
func Usage(used, limit int64) string {
	if limit <= 0 {
		return Bytes(used)
	}
	return fmt.Sprintf("%s / %s (%.1f%%)", Bytes(used), Bytes(limit), 100*float64(used)/float64(limit))
}

// Uptime reformats a Go duration string as "3d 0h 30m 15s". Input that
// does not parse is returned unchanged.
func Uptime(s string) string {
	d, err := time.ParseDuration(s)
	if err != nil {
		return s
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// YesNo renders a flag for tables.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
