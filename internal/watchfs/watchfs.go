// Package watchfs turns fsnotify notifications for a watched root
// into the created/removed/modified events the engine consumes.
// Directories created inside the tree are added to the watch as they
// appear, so the whole subtree stays covered.
package watchfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

type Kind int

const (
	KindCreated Kind = iota
	KindRemoved
	KindModified
)

func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindRemoved:
		return "removed"
	case KindModified:
		return "modified"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one observation under the watched root. Path is
// slash-separated and relative to the root.
type Event struct {
	Path string
	Kind Kind
}

type Watcher struct {
	root      string
	fsw       *fsnotify.Watcher
	events    chan Event
	log       zerolog.Logger
	closeOnce sync.Once
}

// New starts watching root and every directory below it. Events are
// not delivered until Run is called; fsnotify buffers in between.
func New(root string, log zerolog.Logger) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s: not a directory", root)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	w := &Watcher{
		root:   root,
		fsw:    fsw,
		events: make(chan Event, 256),
		log:    log.With().Str("component", "watchfs").Logger(),
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			// Entries can vanish mid-walk; skip them.
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if p != w.root && strings.HasPrefix(filepath.Base(p), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// Events is the single consumer channel. Delivery blocks rather than
// dropping so per-path ordering survives slow consumers.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run translates fsnotify notifications until the watcher is closed.
// It always closes the events channel on the way out.
func (w *Watcher) Run() {
	defer close(w.events)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.log.Warn().Err(err).Msg("watcher error")
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn().Err(err).Str("path", rel).Msg("failed to extend watch")
			}
		}
		w.events <- Event{Path: rel, Kind: KindCreated}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.events <- Event{Path: rel, Kind: KindRemoved}
	case ev.Has(fsnotify.Write):
		w.events <- Event{Path: rel, Kind: KindModified}
	}
}

// Close stops the watch. Run drains and closes the events channel.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}
