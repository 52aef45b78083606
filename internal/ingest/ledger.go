package ingest

import (
	"context"
	"sync"
)

// SourceLog persists the keys of documents whose every chunk has been stored, so a
// restarted process can skip them.
type SourceLog interface {
	MarkIngested(ctx context.Context, key string) error
}

type docProgress struct {
	emitted   int
	committed int
	sealed    bool
	failed    bool
	// unsaved is set when a batch holding one of the document's chunks was added
	// in memory but not journaled.
	unsaved bool
}

// ledger follows each document of one run from extraction to storage. A document is
// complete once extraction has emitted all of its chunks and every batch holding
// them was added. Documents with a failed batch never complete in that run.
type ledger struct {
	mu   sync.Mutex
	docs map[string]*docProgress
	done func(key string, persisted bool)
}

func newLedger(done func(key string, persisted bool)) *ledger {
	return &ledger{docs: make(map[string]*docProgress), done: done}
}

func (l *ledger) docLocked(key string) *docProgress {
	d, ok := l.docs[key]
	if !ok {
		d = &docProgress{}
		l.docs[key] = d
	}
	return d
}

// emit counts a chunk before it is handed to the batcher.
func (l *ledger) emit(key string) {
	l.mu.Lock()
	l.docLocked(key).emitted++
	l.mu.Unlock()
}

// seal records that extraction emitted every chunk of key.
func (l *ledger) seal(key string) {
	l.mu.Lock()
	d := l.docLocked(key)
	d.sealed = true
	completed, persisted := l.completeLocked(key, d), !d.unsaved
	l.mu.Unlock()
	if completed {
		l.done(key, persisted)
	}
}

// commit records one added chunk per entry of keys.
func (l *ledger) commit(keys []string, persisted bool) {
	l.mu.Lock()
	touched := make(map[string]*docProgress)
	for _, k := range keys {
		d := l.docLocked(k)
		d.committed++
		if !persisted {
			d.unsaved = true
		}
		touched[k] = d
	}
	completed := make(map[string]bool)
	for k, d := range touched {
		if l.completeLocked(k, d) {
			completed[k] = !d.unsaved
		}
	}
	l.mu.Unlock()
	for k, persisted := range completed {
		l.done(k, persisted)
	}
}

// fail marks every document in keys as incomplete for the rest of the run.
func (l *ledger) fail(keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		l.docLocked(k).failed = true
	}
}

func (l *ledger) completeLocked(key string, d *docProgress) bool {
	if !d.sealed || d.failed || d.committed < d.emitted {
		return false
	}
	delete(l.docs, key)
	return true
}
