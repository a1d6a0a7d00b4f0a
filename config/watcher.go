package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change reports that the watched file was written, created or replaced.
type Change struct {
	Path string
	Op   string
	At   time.Time
}

// Watcher reports changes of one configuration file. It watches the parent
// directory so editors that replace the file through a rename are seen too.
//
// Changes coalesce: while a change is waiting to be read further ones are dropped,
// so a frame loop draining Changes once per tick reloads at most once.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan Change
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	now     func() time.Time
}

// NewWatcher starts watching path.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &Watcher{
		path:    abs,
		watcher: fw,
		changes: make(chan Change, 1),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Changes delivers coalesced change notifications.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors delivers watch errors. Like Changes it keeps only the oldest unread one.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&relevant == 0 {
				continue
			}
			select {
			case w.changes <- Change{Path: w.path, Op: event.Op.String(), At: w.now()}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}
