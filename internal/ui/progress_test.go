package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"vidshare/internal/transfer"
)

func TestDescribe(t *testing.T) {
	up := transfer.Snapshot{
		Phase:      transfer.PhaseUploading,
		Sent:       5 << 20,
		Total:      20 << 20,
		Throughput: 1 << 20,
		Countdown:  15,
	}
	require.Equal(t, "clip.mp4  5 MB / 20 MB  1 MB/s  ETA 15s", Describe("clip.mp4", up))

	up.Countdown = -1
	up.Throughput = 0
	require.Equal(t, "clip.mp4  5 MB / 20 MB  —  ETA estimating…", Describe("clip.mp4", up))

	require.Equal(t, "clip.mp4  finalizing…", Describe("clip.mp4", transfer.Snapshot{Phase: transfer.PhaseFinalizing}))
	require.Equal(t, "clip.mp4  20 MB uploaded", Describe("clip.mp4", transfer.Snapshot{Phase: transfer.PhaseDone, Total: 20 << 20}))
	require.Equal(t, "clip.mp4", Describe("clip.mp4", transfer.Snapshot{Phase: transfer.PhaseIdle}))
}

func TestProgress_PrintsFailureOnce(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "clip.mp4")

	p.Observe(transfer.Snapshot{Phase: transfer.PhaseUploading, Percent: 10, Total: 100, Countdown: -1})
	p.Observe(transfer.Snapshot{Phase: transfer.PhaseError, Percent: 10, Message: "File must be at least 10 MB."})
	p.Observe(transfer.Snapshot{Phase: transfer.PhaseError, Percent: 10, Message: "File must be at least 10 MB."})

	require.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("clip.mp4: File must be at least 10 MB.")))
}

func TestProgress_Done(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "clip.mp4")

	p.Observe(transfer.Snapshot{Phase: transfer.PhaseUploading, Percent: 50, Total: 100, Countdown: 3})
	p.Observe(transfer.Snapshot{Phase: transfer.PhaseDone, Percent: 100, Total: 100})

	require.NotEmpty(t, buf.String())
	require.Equal(t, transfer.PhaseDone, p.last)
}
