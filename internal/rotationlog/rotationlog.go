package rotationlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const fileName = "api-key-rotation.log"

// Sink receives one line per rotation event.
type Sink interface {
	Append(line string)
}

// DefaultPath returns the per-platform location of the rotation log:
// %USERPROFILE%\.gemini-rotator\logs on Windows, ~/Library/Logs/gemini-rotator
// on macOS and ~/.local/share/gemini-rotator/logs elsewhere.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(logDir(runtime.GOOS, home), fileName)
}

func logDir(goos, home string) string {
	switch goos {
	case "windows":
		return filepath.Join(home, ".gemini-rotator", "logs")
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "gemini-rotator")
	default:
		return filepath.Join(home, ".local", "share", "gemini-rotator", "logs")
	}
}

// FileSink appends timestamped lines to a file. Write errors are dropped.
type FileSink struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultPath()
	}
	return &FileSink{path: path, now: time.Now}
}

func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = fmt.Fprintf(f, "[%s] %s\n", s.now().UTC().Format(time.RFC3339Nano), line)
}

// Multi fans a line out to every non-nil sink.
type Multi []Sink

func (m Multi) Append(line string) {
	for _, s := range m {
		if s != nil {
			s.Append(line)
		}
	}
}
