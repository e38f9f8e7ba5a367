package store

import (
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watcher invalidates cached collection files when something else writes
// to the data directory (manual edits, another tool). Our own saves also
// trigger events; the extra re-read is harmless.
type watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

func newWatcher(dir string, invalidate func(file string)) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &watcher{fsw: fsw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if !strings.HasSuffix(name, ".yaml") {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					invalidate(name)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Printf("store: watch error: %v", err)
			}
		}
	}()
	return w, nil
}

func (w *watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
