package app

import (
	"sync"

	"github.com/google/uuid"

	"quizhub-service/internal/domain"
)

// StatsFeed fans out per-quiz stats updates to websocket subscribers.
// Slow consumers never block a publish: a full channel has its stale value
// dropped before the fresh one goes in.
type StatsFeed struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan domain.QuizStats]struct{}
}

func NewStatsFeed() *StatsFeed {
	return &StatsFeed{
		subs: make(map[uuid.UUID]map[chan domain.QuizStats]struct{}),
	}
}

// Subscribe registers a listener for one quiz. The caller must invoke the
// returned cancel function to avoid leaks.
func (f *StatsFeed) Subscribe(quizID uuid.UUID) (<-chan domain.QuizStats, func()) {
	ch := make(chan domain.QuizStats, 8)

	f.mu.Lock()
	if f.subs[quizID] == nil {
		f.subs[quizID] = make(map[chan domain.QuizStats]struct{})
	}
	f.subs[quizID][ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if listeners, ok := f.subs[quizID]; ok {
			if _, ok := listeners[ch]; ok {
				delete(listeners, ch)
				close(ch)
			}
			if len(listeners) == 0 {
				delete(f.subs, quizID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// HasSubscribers lets publishers skip recomputing stats nobody is watching.
func (f *StatsFeed) HasSubscribers(quizID uuid.UUID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[quizID]) > 0
}

// Publish delivers stats to every listener of the quiz. The exclusive lock
// keeps the drain-then-resend below atomic per channel; two publishers
// interleaving there could both hit an already-full buffer and block.
func (f *StatsFeed) Publish(quizID uuid.UUID, stats domain.QuizStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs[quizID] {
		select {
		case ch <- stats:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- stats
		}
	}
}
