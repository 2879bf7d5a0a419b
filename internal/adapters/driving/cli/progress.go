package cli

import (
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

// progressReporter draws one bar per index run
type progressReporter struct {
	w io.Writer

	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	last int
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{w: w}
}

// Report advances the bar. A drop in Done starts a new run.
func (p *progressReporter) Report(ev services.IndexProgress) {
	if ev.Total <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || ev.Done <= p.last {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		desc := "indexing"
		if ev.SessionID != "" {
			desc += " " + ev.SessionID
		}
		p.bar = progressbar.NewOptions(ev.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	p.last = ev.Done
	_ = p.bar.Set(ev.Done)
}

// Finish clears the last bar.
func (p *progressReporter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
	p.last = 0
}

// progressEnabled reports whether w is an interactive terminal
func progressEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
