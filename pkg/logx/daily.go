package logx

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// dailyWriter appends to <dir>/<YYYY-MM-DD>.log and swaps the file when
// the UTC date changes. Safe for concurrent use.
type dailyWriter struct {
	mu   sync.Mutex
	dir  string
	day  string
	file *os.File

	now func() time.Time // overridable in tests
}

func newDailyWriter(dir string) (*dailyWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &dailyWriter{dir: dir, now: time.Now}
	if err := w.rotate(dayStamp(w.now())); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *dailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if day := dayStamp(w.now()); day != w.day {
		if err := w.rotate(day); err != nil {
			// Keep writing to yesterday's file rather than dropping the line.
			return w.file.Write(p)
		}
	}
	return w.file.Write(p)
}

// rotate must be called with mu held (or before the writer is shared).
func (w *dailyWriter) rotate(day string) error {
	f, err := os.OpenFile(filepath.Join(w.dir, day+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = f
	w.day = day
	return nil
}

func (w *dailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
