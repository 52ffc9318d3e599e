// Package progress reports preload progress on a terminal.
package progress

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// Description is shown in front of the bar.
const Description = "Preloading URLs"

// Func is called with the number of processed URLs and the total. It is
// called once with done == 0 before the first URL.
type Func func(done, total int)

// Nop discards progress.
func Nop(done, total int) {}

// Options configures a terminal bar.
type Options struct {
	// Writer receives the bar. Defaults to os.Stderr.
	Writer io.Writer

	// Disabled turns the bar into Nop.
	Disabled bool

	// NoColor forces plain output even on a color terminal.
	NoColor bool
}

// New returns a Func rendering a progress bar, or Nop when disabled.
func New(opts Options) Func {
	if opts.Disabled {
		return Nop
	}
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	color := !opts.NoColor && termenv.NewOutput(opts.Writer).ColorProfile() != termenv.Ascii
	b := &bar{writer: opts.Writer, color: color}
	return b.update
}

// bar owns one progressbar per preload pass.
type bar struct {
	writer io.Writer
	color  bool
	pb     *progressbar.ProgressBar
}

func (b *bar) update(done, total int) {
	if done == 0 || b.pb == nil {
		if b.pb != nil {
			_ = b.pb.Exit()
		}
		b.pb = b.newBar(total)
	}

	_ = b.pb.Set(done)

	if done >= total {
		_ = b.pb.Finish()
		b.pb = nil
	}
}

func (b *bar) newBar(total int) *progressbar.ProgressBar {
	description := Description
	if b.color {
		description = "[cyan]" + Description + "[reset]"
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.writer),
		progressbar.OptionSetDescription(description),
		progressbar.OptionEnableColorCodes(b.color),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("url"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(b.writer, "\n")
		}),
	)
}
