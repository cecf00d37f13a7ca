package transfer

import (
	"math"
	"time"
)

// Unknown marks a length or rate that cannot be determined
const Unknown = -1

// ProgressEvent describes the state of a copy after one chunk.
//
// Rates are bytes per millisecond times eight, i.e. kilobits per second.
type ProgressEvent struct {
	ReadBytesTotal            int64
	ReadBytesCurrentOperation int64
	// TotalLength is the expected length, or Unknown.
	TotalLength int64
	// TransferRateTotal is the average since the start, or Unknown before
	// any time has elapsed.
	TransferRateTotal int64
	// TransferRateCurrent is resampled at most every 500ms.
	TransferRateCurrent int64
	Elapsed             time.Duration
}

// PercentageProgress returns the completed share in percent, Unknown when
// the length is unknown, and 100 for an empty source.
func (e ProgressEvent) PercentageProgress() int {
	return Percentage(e.ReadBytesTotal, e.TotalLength)
}

// RemainingTime estimates the time left from the average rate. It returns
// math.MaxInt64 nanoseconds when no estimate is possible.
func (e ProgressEvent) RemainingTime() time.Duration {
	return RemainingTime(e.ReadBytesTotal, e.TotalLength, e.TransferRateTotal)
}

// Percentage computes 100*done/total with the Unknown and empty cases.
func Percentage(done, total int64) int {
	switch {
	case total < 0:
		return Unknown
	case total == 0:
		return 100
	default:
		return int(100 * done / total)
	}
}

// RemainingTime converts a rate in kilobits per second into the whole seconds
// needed for the bytes left.
func RemainingTime(done, total, rate int64) time.Duration {
	if rate <= 0 || total < 0 {
		return time.Duration(math.MaxInt64)
	}
	bytesPerSecond := (rate / 8) * 1000
	if bytesPerSecond <= 0 {
		return time.Duration(math.MaxInt64)
	}
	remaining := total - done
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining/bytesPerSecond) * time.Second
}
