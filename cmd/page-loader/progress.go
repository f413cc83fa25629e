package main

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"

	"page-loader/pkg/types"
)

const progressTemplate = `{{ string . "prefix" }} {{ counters . }} {{ bar . }} {{ percent . }}`

// progressBar shows one bar for all resource categories. Totals grow as
// each category reports its batch size.
type progressBar struct {
	mu      sync.Mutex
	bar     *pb.ProgressBar
	started bool
}

func newProgressBar(w io.Writer) *progressBar {
	bar := pb.New(0)
	bar.SetTemplateString(progressTemplate)
	bar.SetWriter(w)
	bar.SetMaxWidth(100)
	bar.Set(pb.Terminal, true)
	bar.SetRefreshRate(100 * time.Millisecond)
	bar.Set("prefix", "Downloading resources")
	return &progressBar{bar: bar}
}

func (p *progressBar) BatchStarted(c types.Category, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.AddTotal(int64(total))
	if !p.started {
		p.bar.Start()
		p.started = true
	}
}

func (p *progressBar) ResourceSaved(c types.Category, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Set("prefix", c.String()+" "+filepath.Base(path))
	p.bar.Increment()
}

func (p *progressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		p.bar.Set("prefix", "Resources downloaded")
		p.bar.Finish()
	}
}
