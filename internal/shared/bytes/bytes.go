package bytes

import (
	"fmt"
	"github.com/zeebo/xxh3"
)

// Digest returns the xxh3 hash of the full payload. Zero for empty payloads.
func Digest(p []byte) uint64 {
	if len(p) == 0 {
		return 0
	}
	return xxh3.Hash(p)
}

// FmtMem renders a byte amount in its two most significant units.
func FmtMem(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%dTB %dGB", bytes/TB, bytes%TB/GB)
	case bytes >= GB:
		return fmt.Sprintf("%dGB %dMB", bytes/GB, bytes%GB/MB)
	case bytes >= MB:
		return fmt.Sprintf("%dMB %dKB", bytes/MB, bytes%MB/KB)
	case bytes >= KB:
		return fmt.Sprintf("%dKB %dB", bytes/KB, bytes%KB)
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// FmtQuota renders a quota where zero means no ceiling.
func FmtQuota(bytes int64) string {
	if bytes <= 0 {
		return "INF"
	}
	return FmtMem(uint64(bytes))
}
