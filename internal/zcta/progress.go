package zcta

import (
	"maps"
	"slices"
	"sync"
)

// Phase is a step of the load pipeline. Phases are reported in the order
// downloading, processing, indexing, complete.
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseProcessing  Phase = "processing"
	PhaseIndexing    Phase = "indexing"
	PhaseComplete    Phase = "complete"
)

// Progress is one load progress event.
type Progress struct {
	Phase   Phase  `json:"phase"`
	Percent int    `json:"progress"`
	Message string `json:"message"`
}

type listenerSet struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Progress)
}

func (l *listenerSet) add(fn func(Progress)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Progress))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// emit calls listeners outside the lock so a listener may unsubscribe.
func (l *listenerSet) emit(p Progress) {
	l.mu.Lock()
	fns := make([]func(Progress), 0, len(l.fns))
	for _, id := range slices.Sorted(maps.Keys(l.fns)) {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}
