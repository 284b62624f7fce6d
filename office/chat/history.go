package chat

// History is a fixed capacity ring buffer of general chat messages.
type History struct {
	buf   []Message
	start int
	size  int
}

// NewHistory creates a history that retains at most limit messages.
func NewHistory(limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{buf: make([]Message, limit)}
}

// Append stores m, evicting the oldest message when full.
func (h *History) Append(m Message) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = m
		h.size++
		return
	}
	h.buf[h.start] = m
	h.start = (h.start + 1) % len(h.buf)
}

// List returns the retained messages, oldest first.
func (h *History) List() []Message {
	out := make([]Message, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of retained messages.
func (h *History) Len() int { return h.size }

// Cap returns the maximum number of retained messages.
func (h *History) Cap() int { return len(h.buf) }
