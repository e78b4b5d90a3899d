// Package notify ingests note files dropped into the inbox directory.
// Other tools (editors, sync clients, shell scripts) write plain text
// files; the watcher picks them up and hands their contents to the
// ingestion pipeline.
package notify

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// NoteFunc receives the contents of one inbox file. sourceID is the
// file's base name.
type NoteFunc func(ownerID, text, sourceID string)

// InboxWatcher watches {dataPath}/inbox/ and dispatches each dropped
// .txt or .md file as a note. Consumed files are removed.
type InboxWatcher struct {
	dir     string
	ownerID string
	onNote  NoteFunc
	log     *zap.SugaredLogger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewInboxWatcher creates a watcher for {dataPath}/inbox/. Every file is
// attributed to ownerID.
func NewInboxWatcher(dataPath, ownerID string, onNote NoteFunc, log *zap.SugaredLogger) *InboxWatcher {
	return &InboxWatcher{
		dir:     filepath.Join(dataPath, "inbox"),
		ownerID: ownerID,
		onNote:  onNote,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start begins watching. It drains any files already sitting in the
// inbox first, then watches for new ones. Call Stop() to clean up.
func (iw *InboxWatcher) Start() error {
	if err := os.MkdirAll(iw.dir, 0o700); err != nil {
		return err
	}

	iw.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(iw.dir); err != nil {
		_ = w.Close()
		return err
	}
	iw.watcher = w

	go iw.loop()
	iw.log.Infow("watching inbox for note files", "dir", iw.dir)
	return nil
}

// Stop shuts down the watcher.
func (iw *InboxWatcher) Stop() {
	if iw.watcher != nil {
		_ = iw.watcher.Close()
	}
	<-iw.done
}

func (iw *InboxWatcher) loop() {
	defer close(iw.done)
	for {
		select {
		case evt, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			// Write events cover editors that create-then-fill.
			if evt.Op&(fsnotify.Create|fsnotify.Write) != 0 && isNoteFile(evt.Name) {
				iw.processFile(evt.Name)
			}
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			iw.log.Warnw("inbox watcher error", "error", err)
		}
	}
}

func (iw *InboxWatcher) drainExisting() {
	entries, err := os.ReadDir(iw.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && isNoteFile(entry.Name()) {
			iw.processFile(filepath.Join(iw.dir, entry.Name()))
		}
	}
}

func (iw *InboxWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file already consumed
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		// Likely a create event before the writer flushed; the Write
		// event will follow.
		return
	}
	_ = os.Remove(path)

	if iw.onNote != nil {
		iw.onNote(iw.ownerID, text, filepath.Base(path))
	}
}

func isNoteFile(name string) bool {
	return strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".md")
}
