package session

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// Session lifecycle states.
const (
	StateAnonymous = "anonymous" // no token has ever been stored
	StateActive    = "active"    // token held and not yet expired
	StateExpired   = "expired"   // token held but past its expiry
)

// Lifecycle events.
const (
	EventAuthenticated = "authenticated"
	EventExpired       = "expired"
)

// lifecycle mirrors the session's externally observable auth state. The token
// triple stays the source of truth; this machine exists for health reporting
// and transition logs.
type lifecycle struct {
	mu  sync.RWMutex
	fsm *fsm.FSM
}

func newLifecycle(onTransition func(from, to string)) *lifecycle {
	l := &lifecycle{}
	l.fsm = fsm.NewFSM(
		StateAnonymous,
		fsm.Events{
			{Name: EventAuthenticated, Src: []string{StateAnonymous, StateExpired}, Dst: StateActive},
			{Name: EventExpired, Src: []string{StateActive}, Dst: StateExpired},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if onTransition != nil && e.Src != e.Dst {
					onTransition(e.Src, e.Dst)
				}
			},
		},
	)
	return l
}

// Current returns the lifecycle state.
func (l *lifecycle) Current() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fsm.Current()
}

// trigger fires an event if it is valid from the current state.
func (l *lifecycle) trigger(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fsm.Can(event) {
		_ = l.fsm.Event(context.Background(), event)
	}
}
