package scan

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const barWidth = 30

// progress draws a round counter. On a terminal it redraws one line in
// place; otherwise it writes one line per update.
type progress struct {
	w   io.Writer
	tty bool
}

func newProgress(w io.Writer, disabled bool) *progress {
	if disabled {
		return nil
	}
	if w == nil {
		w = os.Stderr
	}
	p := &progress{w: w}
	if f, ok := w.(*os.File); ok {
		p.tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

func (p *progress) update(done, total int) {
	if p == nil {
		return
	}
	if total < done {
		total = done
	}
	filled := 0
	if total > 0 {
		filled = barWidth * done / total
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	if p.tty {
		fmt.Fprintf(p.w, "\r[%s] %d/%d", bar, done, total)
		return
	}
	fmt.Fprintf(p.w, "[%s] %d/%d\n", bar, done, total)
}

func (p *progress) finish() {
	if p == nil || !p.tty {
		return
	}
	fmt.Fprintln(p.w)
}
