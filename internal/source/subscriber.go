package source

import (
	"context"
	"sync"

	"github.com/billie-coop/margin/internal/changes"
)

// subscriber delivers signals in order without ever blocking the
// publisher: pending signals queue up until the reader takes them.
type subscriber struct {
	ctx    context.Context
	out    chan changes.EditSignal
	notify chan struct{}

	mu      sync.Mutex
	pending []changes.EditSignal
	closed  bool
	done    chan struct{}
}

func newSubscriber(ctx context.Context) *subscriber {
	s := &subscriber{
		ctx:    ctx,
		out:    make(chan changes.EditSignal),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(sig changes.EditSignal) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, sig)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// close stops delivery; signals not yet read are dropped.
func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}

func (s *subscriber) run() {
	defer close(s.out)

	for {
		s.mu.Lock()
		var next []changes.EditSignal
		next, s.pending = s.pending, nil
		s.mu.Unlock()

		for _, sig := range next {
			select {
			case s.out <- sig:
			case <-s.ctx.Done():
				return
			case <-s.done:
				return
			}
		}

		select {
		case <-s.notify:
		case <-s.ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}
