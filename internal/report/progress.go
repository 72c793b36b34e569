package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/nao1215/sbdl/internal/model"
)

// progressWidth is the number of cells in the bar.
const progressWidth = 100

// ProgressLine renders "[====    ] 03/10". Counters are zero-padded to the
// digit width of total. It returns "" when total is not positive.
func ProgressLine(completed, total int) string {
	if total <= 0 {
		return ""
	}
	completed = max(0, min(completed, total))

	filled := completed * progressWidth / total
	width := len(strconv.Itoa(total))

	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(strings.Repeat("=", filled))
	sb.WriteString(strings.Repeat(" ", progressWidth-filled))
	sb.WriteString("] ")
	fmt.Fprintf(&sb, "%0*d/%0*d", width, completed, width, total)
	return sb.String()
}

// ProgressPrinter draws a progress bar per soundboard, overwriting the
// current line on every event. It is safe for concurrent use, but bars of
// soundboards downloaded at the same time share one line.
type ProgressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	current string
}

// NewProgressPrinter creates a printer writing to out.
func NewProgressPrinter(out io.Writer) *ProgressPrinter {
	return &ProgressPrinter{out: out}
}

// Handle renders one event. It matches model.ProgressFunc.
func (p *ProgressPrinter) Handle(ev model.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Soundboard != p.current {
		p.current = ev.Soundboard
		fmt.Fprintf(p.out, "Downloading %s\n", ev.Soundboard)
	}

	fmt.Fprintf(p.out, "\r%s", ProgressLine(ev.Completed, ev.Total))
	if ev.Done() {
		fmt.Fprintln(p.out)
		p.current = ""
	}
}
