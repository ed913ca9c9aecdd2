package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressRenderer draws a single-line progress bar for an offline
// analysis run. Updates are percent-driven so it plugs directly into
// the orchestrator's progress callback.
type ProgressRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	name     string
	start    time.Time
	lastPct  float64
	finished bool
}

// NewProgressRenderer creates a renderer writing to out.
func NewProgressRenderer(out io.Writer, name string) *ProgressRenderer {
	return &ProgressRenderer{
		out:   out,
		name:  name,
		start: time.Now(),
	}
}

// Update redraws the bar at pct with the stage message.
func (p *ProgressRenderer) Update(pct float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}
	if pct < p.lastPct {
		pct = p.lastPct
	}
	p.lastPct = pct

	const barWidth = 20
	filled := int(pct / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}

	var b strings.Builder
	b.WriteString("\r\033[K")
	b.WriteString(p.name)
	b.WriteString(" [")
	b.WriteString(strings.Repeat("█", filled))
	b.WriteString(strings.Repeat("░", barWidth-filled))
	fmt.Fprintf(&b, "] %3.0f%%", pct)
	if message != "" {
		b.WriteString(" - ")
		b.WriteString(message)
	}
	fmt.Fprint(p.out, b.String())
}

// Finish ends the line with the total elapsed time.
func (p *ProgressRenderer) Finish(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}
	p.finished = true
	fmt.Fprintf(p.out, "\r\033[K✅ %s: %s (%v)\n", p.name, message, time.Since(p.start).Round(time.Millisecond))
}

// Fail ends the line marking the run as failed.
func (p *ProgressRenderer) Fail(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}
	p.finished = true
	fmt.Fprintf(p.out, "\r\033[K❌ %s: %s (%v)\n", p.name, reason, time.Since(p.start).Round(time.Millisecond))
}
