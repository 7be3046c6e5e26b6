package tabsync

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var _ Slot = &FileSlot{}

// FileSlot binds a tab to a credential file shared between processes,
// watched with fsnotify. Each process (or tab) holds its own FileSlot on the
// same path.
type FileSlot struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mx   sync.Mutex
	last string
	fn   func(token string)
}

func NewFileSlot(path string) (*FileSlot, error) {
	s := &FileSlot{
		path:   path,
		logger: slog.Default().With("logger", "FileSlot"),
	}

	var err error

	s.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// watch the directory: the file itself may not exist yet, and removal
	// must be observable
	if err := s.watcher.Add(filepath.Dir(path)); err != nil {
		_ = s.watcher.Close()

		return nil, err
	}

	s.mx.Lock()
	s.last = s.read()
	s.mx.Unlock()

	go s.watch()

	return s, nil
}

func (s *FileSlot) read() string {
	dat, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(dat))
}

func (s *FileSlot) Load() string {
	return s.read()
}

func (s *FileSlot) Store(token string) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.last = token

	return os.WriteFile(s.path, []byte(token), 0o600)
}

func (s *FileSlot) Clear() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.last = ""

	err := os.Remove(s.path)

	if os.IsNotExist(err) {
		return nil
	}

	return err
}

func (s *FileSlot) Subscribe(fn func(token string)) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.fn = fn
}

func (s *FileSlot) Close() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
}

func (s *FileSlot) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if event.Name != s.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.changed()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}

			s.logger.Error("watch error", slog.Any("error", err))
		}
	}
}

// changed fires the subscriber on external changes only: an event that still
// carries this binding's own last write is an echo and is skipped.
func (s *FileSlot) changed() {
	s.mx.Lock()

	value := s.read()

	if value == s.last {
		s.mx.Unlock()

		return
	}

	s.last = value
	fn := s.fn
	s.mx.Unlock()

	if fn != nil {
		fn(value)
	}
}
