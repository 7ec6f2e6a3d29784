package relay

import "sync"

// tailBuffer keeps the last max bytes written, for exit diagnostics.
type tailBuffer struct {
	lock sync.Mutex
	max  int
	buf  []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return string(t.buf)
}
