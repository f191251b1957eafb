package job

import (
	"math"
	"time"
)

const (
	backoffBase     = 60.0 // seconds before the first retry
	backoffExponent = 1.6
)

// RetryDelay returns how long to wait before retry attempt n (1-indexed,
// n = 1 + previously recorded errors). The curve is 60 * n^1.6 seconds:
// superlinear, strictly increasing and unbounded.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := backoffBase * math.Pow(float64(attempt), backoffExponent)
	return time.Duration(seconds * float64(time.Second))
}
