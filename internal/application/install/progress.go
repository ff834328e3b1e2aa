package install

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/doeshing/mmrl-go/internal/domain"
)

const minProgressStep = 64 << 10

// progressWriter turns copied byte counts into a single rewritten console line.
type progressWriter struct {
	run     *Run
	total   int64
	written int64
	last    int64
	shown   bool
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	step := int64(minProgressStep)
	if p.total > 0 && p.total/100 > step {
		step = p.total / 100
	}
	if !p.shown || p.written-p.last >= step || p.written == p.total {
		p.emit()
	}
	return len(b), nil
}

func (p *progressWriter) emit() {
	line := "- Copying " + humanize.Bytes(uint64(p.written))
	if p.total > 0 {
		line = fmt.Sprintf("- Copying %s / %s (%d%%)", humanize.Bytes(uint64(p.written)), humanize.Bytes(uint64(p.total)), p.written*100/p.total)
	}
	if !p.shown {
		// The first line is appended; later ones rewrite it in place.
		p.run.progress(domain.LogEvent(line))
		p.shown = true
	} else {
		p.run.progress(domain.SetLastLineEvent(line))
	}
	p.last = p.written
}

// clear removes the progress line, if one was shown.
func (p *progressWriter) clear() {
	if p.shown {
		p.run.progress(domain.RemoveLastLineEvent())
		p.shown = false
	}
}
