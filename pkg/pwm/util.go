package pwm

import (
	"fmt"
	"math"
)

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func fmtAddr(a byte) string { return fmt.Sprintf("%#02x", a) }
