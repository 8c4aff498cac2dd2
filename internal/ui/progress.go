// Package ui renders upload sessions on a terminal.
package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"vidshare/internal/transfer"
	"vidshare/pkg/utils"
)

// Progress draws one session's snapshots as a progress bar. Observe is safe
// to hand to transfer.NewSession directly.
type Progress struct {
	mu   sync.Mutex
	w    io.Writer
	name string
	bar  *progressbar.ProgressBar
	last transfer.Phase
}

func NewProgress(w io.Writer, name string) *Progress {
	return &Progress{w: w, name: name}
}

func (p *Progress) initBar() {
	if p.bar != nil {
		return
	}
	p.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(p.name),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
}

func (p *Progress) Observe(s transfer.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initBar()
	p.bar.Describe(Describe(p.name, s))
	_ = p.bar.Set(s.Percent)

	switch s.Phase {
	case transfer.PhaseDone:
		if p.last != transfer.PhaseDone {
			_ = p.bar.Finish()
			fmt.Fprintln(p.w)
		}
	case transfer.PhaseError:
		if p.last != transfer.PhaseError {
			_ = p.bar.Exit()
			fmt.Fprintf(p.w, "\n%s: %s\n", p.name, s.Message)
		}
	}
	p.last = s.Phase
}

// Describe is the text shown next to the bar.
func Describe(name string, s transfer.Snapshot) string {
	switch s.Phase {
	case transfer.PhaseFinalizing:
		return fmt.Sprintf("%s  finalizing…", name)
	case transfer.PhaseDone:
		return fmt.Sprintf("%s  %s uploaded", name, utils.FormatBytes(s.Total))
	case transfer.PhaseError:
		return fmt.Sprintf("%s  failed", name)
	case transfer.PhaseUploading:
		return fmt.Sprintf("%s  %s / %s  %s  ETA %s", name,
			utils.FormatBytes(s.Sent), utils.FormatBytes(s.Total),
			utils.FormatSpeed(s.Throughput), utils.FormatETA(s.Countdown))
	default:
		return name
	}
}
