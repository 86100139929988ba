package pool

// history is a fixed-capacity ring of ids. Once full, every write overwrites the oldest id.
type history struct {
	buf  []ID
	next int
	full bool
}

func newHistory(capacity int) *history {
	return &history{buf: make([]ID, capacity)}
}

func (h *history) write(id ID) {
	h.buf[h.next] = id
	h.next++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
}

func (h *history) len() int {
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// ordered calls fn for every id in the window, oldest first.
func (h *history) ordered(fn func(ID)) {
	if h.full {
		for _, id := range h.buf[h.next:] {
			fn(id)
		}
	}
	for _, id := range h.buf[:h.next] {
		fn(id)
	}
}
