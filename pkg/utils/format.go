package utils

import (
	"fmt"
	"math"
	"strings"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders n with binary units: 512 B, 1.5 KB, 10 MB.
func FormatBytes(n int64) string {
	if n < 0 {
		return "-"
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	s := strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
	return s + " " + byteUnits[i]
}

// FormatSpeed renders a bytes-per-second rate.
func FormatSpeed(bps float64) string {
	if bps <= 0 || math.IsInf(bps, 0) || math.IsNaN(bps) {
		return "—"
	}
	return FormatBytes(int64(bps)) + "/s"
}

// FormatETA renders whole seconds as "45s" or "3m 05s". Negative means unknown.
func FormatETA(seconds int) string {
	switch {
	case seconds < 0:
		return "estimating…"
	case seconds < 1:
		return "<1s"
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %02ds", seconds/60, seconds%60)
}
