// Package memory provides an in-memory export writer for tests.
package memory

import (
	"context"
	"sync"

	"github.com/hiwllc/tracker/internal/export"
)

type Writer struct {
	mu    sync.Mutex
	views []export.MonthView
}

var _ export.Writer = (*Writer)(nil)

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) WriteMonthView(_ context.Context, view export.MonthView) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.views = append(w.views, view)
	return nil
}

// Views returns every written view in write order.
func (w *Writer) Views() []export.MonthView {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]export.MonthView, len(w.views))
	copy(out, w.views)
	return out
}

// Last returns the most recent view, or false when nothing was written.
func (w *Writer) Last() (export.MonthView, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.views) == 0 {
		return export.MonthView{}, false
	}
	return w.views[len(w.views)-1], true
}
