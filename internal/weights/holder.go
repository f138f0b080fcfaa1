package weights

import "sync/atomic"

// Holder publishes the current table to concurrent readers. Swap replaces
// the whole snapshot in one pointer store.
type Holder struct {
	p atomic.Pointer[Table]
}

// NewHolder creates a Holder serving t, or an empty table when t is nil.
func NewHolder(t *Table) *Holder {
	h := &Holder{}
	if t == nil {
		t = Empty()
	}
	h.p.Store(t)
	return h
}

// Load returns the current table. It never returns nil.
func (h *Holder) Load() *Table {
	if t := h.p.Load(); t != nil {
		return t
	}
	return Empty()
}

// Swap publishes t and returns the table it replaced.
func (h *Holder) Swap(t *Table) *Table {
	if t == nil {
		t = Empty()
	}
	if old := h.p.Swap(t); old != nil {
		return old
	}
	return Empty()
}
