package images

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the capture directory and enqueues each finished JPEG
// as a scheduled task. The capture process writes to a temp name and
// renames into place, so Create events mark complete files.
type Watcher struct {
	dir   string
	queue *Queue
	log   *slog.Logger
}

func NewWatcher(dir string, queue *Queue, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{dir: dir, queue: queue, log: log}
}

// Run watches until ctx is canceled. A watcher setup failure is returned
// once; event-level errors are logged and absorbed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Info("watching capture directory", "dir", w.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			// Rename events carry the old path of a file moved away;
			// rename-into-dir arrives as Create.
			if !ev.Has(fsnotify.Create) {
				continue
			}
			if !isJPEG(ev.Name) {
				continue
			}
			w.queue.Push(Task{Path: ev.Name, Trigger: TriggerScheduled, Timestamp: time.Now()})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("capture watcher error", "err", err)
		}
	}
}

func isJPEG(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}
