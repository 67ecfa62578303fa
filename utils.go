package server

import (
	"math/rand"
	"time"

	"github.com/go-kit/kit/log"
)

// CheckWarn logs and swallows a non-fatal error, returning true if e was
// non-nil.
func CheckWarn(e error, logger log.Logger) bool {
	if e != nil {
		logger.Log("msg", "Warning", "error", e)
		return true
	}
	return false
}

type DebugLogFunc func(log.Logger, ...interface{})

// DebugLog is a no-op by default; operators wanting verbose tracing swap
// it out at init time.
var DebugLog = DebugLogFunc(func(log.Logger, ...interface{}) {})

type EmptyStruct struct{}

var EmptyStructVal = EmptyStruct{}

func (es EmptyStruct) String() string { return "" }

// JitterRange returns a pseudo-random duration in [min, max), used to keep
// the Registry's heartbeat supervisor off a fixed period.
func JitterRange(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}
