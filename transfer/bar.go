package transfer

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// BarReporter renders copy progress as a terminal progress bar.
type BarReporter struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// NewBarReporter creates a bar for a transfer of total bytes. An unknown total
// (-1) renders a spinner instead of a bar.
func NewBarReporter(out io.Writer, total int64, description string) *BarReporter {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100),
	)
	return &BarReporter{bar: bar, out: out}
}

// Update moves the bar to the number of bytes copied so far.
func (r *BarReporter) Update(done, total int64) {
	if total > 0 && r.bar.GetMax64() != total {
		r.bar.ChangeMax64(total)
	}
	_ = r.bar.Set64(done)
}

// Progress is a ProgressFunc that only reports and never aborts.
func (r *BarReporter) Progress(ev ProgressEvent) Action {
	r.Update(ev.ReadBytesTotal, ev.TotalLength)
	return Continue
}

// Finish completes the bar and ends its line
func (r *BarReporter) Finish() {
	_ = r.bar.Finish()
	fmt.Fprintln(r.out)
}
