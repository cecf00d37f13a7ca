// Package transfer copies data between streams in fixed-size chunks while
// reporting progress and transfer rates to a synchronous callback that can
// abort the copy.
package transfer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// BufferSize is the chunk size of every copy
const BufferSize = 4096

const rateSampleInterval = 500 * time.Millisecond

// ResultCode is the terminal outcome of a copy.
type ResultCode int

const (
	// ResultOK means the source was exhausted or the byte limit was reached.
	ResultOK ResultCode = iota
	// ResultAborted means the progress callback asked to stop.
	ResultAborted
	// ResultInvalidParameter means a stream was missing; no I/O took place.
	ResultInvalidParameter
	// ResultFailed accompanies a non-nil read or write error.
	ResultFailed
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "ok"
	case ResultAborted:
		return "aborted"
	case ResultInvalidParameter:
		return "invalid_parameter"
	case ResultFailed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(c))
	}
}

// Result reports how a copy ended
type Result struct {
	Code             ResultCode
	BytesTransferred int64
}

// Action is returned by a progress callback
type Action int

const (
	// Continue keeps the copy going
	Continue Action = iota
	// Abort stops the copy after the chunk that was just written
	Abort
)

// ProgressFunc is invoked synchronously after every written chunk.
type ProgressFunc func(ev ProgressEvent) Action

// Copier runs chunked copies. The zero value is not usable; use NewCopier.
type Copier struct {
	now func() time.Time
}

// NewCopier creates a copier that uses the wall clock
func NewCopier() *Copier {
	return &Copier{now: time.Now}
}

var defaultCopier = NewCopier()

// Copy copies src to dst with the default copier. See Copier.Copy.
func Copy(src io.Reader, dst io.Writer, maxBytes int64, onProgress ProgressFunc) (Result, error) {
	return defaultCopier.Copy(src, dst, maxBytes, onProgress)
}

// Copy moves data from src to dst in BufferSize chunks.
//
// A maxBytes above zero caps the transfer: exactly maxBytes bytes are written
// when the source holds more, and the copy stops there. Read and write errors
// are returned as they happen without retry; the destination keeps whatever
// was already written.
func (c *Copier) Copy(src io.Reader, dst io.Writer, maxBytes int64, onProgress ProgressFunc) (Result, error) {
	if isNilStream(src) || isNilStream(dst) {
		return Result{Code: ResultInvalidParameter}, nil
	}

	totalLength := SourceLength(src)
	if totalLength < 0 && maxBytes > 0 {
		totalLength = maxBytes
	}
	if maxBytes > 0 && totalLength > maxBytes {
		totalLength = maxBytes
	}

	chunk := int64(BufferSize)
	if maxBytes > 0 && maxBytes < chunk {
		chunk = maxBytes
	}
	buf := make([]byte, BufferSize)

	start := c.now()
	sampleStart := start
	var sampleBytes int64
	var rateCurrent int64
	var written int64

	for {
		n, readErr := src.Read(buf[:chunk])
		if n > 0 {
			w, writeErr := dst.Write(buf[:n])
			written += int64(w)
			if writeErr == nil && w != n {
				writeErr = io.ErrShortWrite
			}
			if writeErr != nil {
				return Result{Code: ResultFailed, BytesTransferred: written}, fmt.Errorf("failed to write chunk: %w", writeErr)
			}

			now := c.now()
			sampleBytes += int64(n)
			if elapsed := now.Sub(sampleStart); elapsed >= rateSampleInterval {
				rateCurrent = sampleBytes * 8 / elapsed.Milliseconds()
				sampleStart = now
				sampleBytes = 0
			}

			rateTotal := int64(-1)
			if elapsedMs := now.Sub(start).Milliseconds(); elapsedMs > 0 {
				rateTotal = written * 8 / elapsedMs
			}

			if onProgress != nil {
				ev := ProgressEvent{
					ReadBytesTotal:            written,
					ReadBytesCurrentOperation: int64(n),
					TotalLength:               totalLength,
					TransferRateTotal:         rateTotal,
					TransferRateCurrent:       rateCurrent,
					Elapsed:                   now.Sub(start),
				}
				if onProgress(ev) == Abort {
					return Result{Code: ResultAborted, BytesTransferred: written}, nil
				}
			}

			if maxBytes > 0 {
				if written >= maxBytes {
					break
				}
				if remaining := maxBytes - written; remaining < chunk {
					chunk = remaining
				}
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Result{Code: ResultFailed, BytesTransferred: written}, fmt.Errorf("failed to read chunk: %w", readErr)
		}
	}

	return Result{Code: ResultOK, BytesTransferred: written}, nil
}

// SourceLength reports the total length of src when the stream knows it,
// or -1.
func SourceLength(src io.Reader) int64 {
	if isNilStream(src) {
		return -1
	}
	switch s := src.(type) {
	case interface{ Size() int64 }:
		return s.Size()
	case interface{ Stat() (os.FileInfo, error) }:
		info, err := s.Stat()
		if err == nil && info.Mode().IsRegular() {
			return info.Size()
		}
	case interface{ Len() int }:
		return int64(s.Len())
	}
	return -1
}

// isNilStream also catches nil pointers of the concrete stream types callers
// commonly pass, which compare unequal to a nil interface.
func isNilStream(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case *bytes.Reader:
		return s == nil
	case *bytes.Buffer:
		return s == nil
	case *strings.Reader:
		return s == nil
	case *os.File:
		return s == nil
	case *io.SectionReader:
		return s == nil
	case *io.PipeReader:
		return s == nil
	case *io.PipeWriter:
		return s == nil
	}
	return false
}
