package feed

import (
	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher invokes a callback whenever a watched sources file is written
// or replaced. The callback runs on the watcher goroutine; keep it short.
type ConfigWatcher struct {
	w        *fsnotify.Watcher
	onChange func(path string)
	done     chan struct{}
}

// NewConfigWatcher starts watching the given config files.
func NewConfigWatcher(onChange func(path string), paths ...string) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, p := range paths {
		if err := w.Add(p); err != nil {
			w.Close()

			return nil, err
		}
	}

	cw := &ConfigWatcher{w: w, onChange: onChange, done: make(chan struct{})}
	go cw.loop()

	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	defer close(cw.done)

	for {
		select {
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				cw.onChange(ev.Name)
			}
		case _, ok := <-cw.w.Errors:
			if !ok {
				return
			}
			// Watch errors are transient; the next event delivery resumes.
		}
	}
}

// Close stops the watcher and waits for the event loop to drain.
func (cw *ConfigWatcher) Close() error {
	err := cw.w.Close()
	<-cw.done

	return err
}
