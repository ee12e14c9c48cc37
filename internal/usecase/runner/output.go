package runner

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// tail keeps the last limit bytes written to a command stream. Once full it
// overwrites its oldest byte in place.
type tail struct {
	mu    sync.Mutex
	limit int
	buf   []byte
	start int // index of the oldest byte once buf is full
	total int64
}

func newTail(limit int) *tail {
	return &tail{limit: limit, buf: make([]byte, 0, min(limit, 4096))}
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	t.total += int64(n)
	if n >= t.limit {
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		t.start = 0
		return n, nil
	}
	if room := t.limit - len(t.buf); room > 0 {
		k := min(room, len(p))
		t.buf = append(t.buf, p[:k]...)
		p = p[k:]
	}
	for len(p) > 0 {
		k := copy(t.buf[t.start:], p)
		p = p[k:]
		t.start = (t.start + k) % t.limit
	}
	return n, nil
}

// Truncated reports how many bytes were overwritten.
func (t *tail) Truncated() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total - int64(len(t.buf))
}

// String returns the kept output as valid UTF-8. Truncated output starts at
// the first whole rune, behind a line naming how many bytes were lost.
func (t *tail) String() string {
	t.mu.Lock()
	data := make([]byte, 0, len(t.buf))
	data = append(data, t.buf[t.start:]...)
	data = append(data, t.buf[:t.start]...)
	lost := t.total - int64(len(t.buf))
	t.mu.Unlock()

	if lost == 0 {
		return strings.ToValidUTF8(string(data), "�")
	}
	skip := 0
	for skip < len(data) && skip < utf8.UTFMax && !utf8.RuneStart(data[skip]) {
		skip++
	}
	lost += int64(skip)
	return fmt.Sprintf("[%d bytes truncated]\n", lost) + strings.ToValidUTF8(string(data[skip:]), "�")
}
