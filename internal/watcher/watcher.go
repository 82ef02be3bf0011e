// Package watcher observes the crews folder and triggers a refresh
// broadcast when its contents change.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// Watcher debounces filesystem events under the crews folder into onChange
// calls.
type Watcher struct {
	root     string
	onChange func()
	fs       *fsnotify.Watcher
}

// New creates a watcher over root. onChange runs at most once per debounce
// interval, however many events arrive.
func New(root string, onChange func()) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{root: root, onChange: onChange, fs: fs}
	if err := w.addRecursive(root); err != nil {
		fs.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if err := w.fs.Add(path); err != nil {
				log.Printf("watcher: cannot watch %s: %v", path, err)
			}
		}
		return nil
	})
}

// Run consumes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			// New crew directories need their own watch.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addRecursive(event.Name)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(debounceInterval, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounceInterval)
			}

		case <-fire:
			timer = nil
			w.onChange()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: error watching crews folder: %v", err)
		}
	}
}
