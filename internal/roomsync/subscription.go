package roomsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/crossplay/internal/models"
)

// Subscription is a live feed of changes to one room.
//
// Updates are delivered one at a time from a single goroutine. When several arrive while a
// delivery is running only the latest is kept.
type Subscription struct {
	s        *Sync
	ctx      context.Context
	cancel   context.CancelFunc
	roomID   string
	code     string
	onUpdate func(models.RoomState)
	handle   Handle

	mu      sync.Mutex
	pending *models.RoomState
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// RoomID returns the id of the subscribed room.
func (sub *Subscription) RoomID() string { return sub.roomID }

// RoomCode returns the normalized code of the subscribed room.
func (sub *Subscription) RoomCode() string { return sub.code }

// Done is closed once the delivery goroutine has exited.
func (sub *Subscription) Done() <-chan struct{} { return sub.done }

// Closed reports whether the subscription has been released.
func (sub *Subscription) Closed() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.closed
}

// Subscribe opens the change feed for the room matching roomCode, loading it first when it
// is not the held room. Any previous subscription is released before the new one opens.
//
// The subscription lives until Close is called or ctx is cancelled.
func (s *Sync) Subscribe(ctx context.Context, roomCode string, onUpdate func(models.RoomState)) (*Subscription, error) {
	code := models.NormalizeRoomCode(roomCode)

	s.mu.Lock()
	prev := s.sub
	s.mu.Unlock()
	s.release(prev)

	state, err := s.Current()
	if err != nil || state.RoomCode != code {
		if state, err = s.LoadRoom(ctx, code); err != nil {
			return nil, err
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		s:        s,
		ctx:      subCtx,
		cancel:   cancel,
		roomID:   state.ID,
		code:     state.RoomCode,
		onUpdate: onUpdate,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	handle, err := s.store.Subscribe(subCtx, state.ID, sub.enqueue)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", state.RoomCode, err)
	}
	sub.handle = handle

	s.mu.Lock()
	s.sub = sub
	s.scheduleLocked()
	s.mu.Unlock()

	go sub.run()
	s.logger.Debug("subscribed", "room", sub.code)
	return sub, nil
}

// WithSubscription subscribes to roomCode, runs fn and releases the subscription when fn
// returns, whether or not fn failed.
func (s *Sync) WithSubscription(ctx context.Context, roomCode string, onUpdate func(models.RoomState), fn func(ctx context.Context, sub *Subscription) error) (err error) {
	sub, err := s.Subscribe(ctx, roomCode, onUpdate)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sub.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(sub.ctx, sub)
}

// Close releases the store subscription and stops the projector. It is safe to call more
// than once and from inside the update callback.
func (sub *Subscription) Close() error {
	sub.closeOnce.Do(func() {
		sub.mu.Lock()
		sub.closed = true
		sub.pending = nil
		sub.mu.Unlock()

		sub.cancel()
		if sub.handle != nil {
			if err := sub.handle.Unsubscribe(); err != nil {
				sub.closeErr = fmt.Errorf("failed to unsubscribe from room %s: %w", sub.code, err)
			}
		}
		sub.s.detach(sub)
		sub.s.logger.Debug("unsubscribed", "room", sub.code)
	})
	return sub.closeErr
}

// enqueue is the store callback. It never blocks.
func (sub *Subscription) enqueue(state models.RoomState) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.pending = &state
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *Subscription) run() {
	defer close(sub.done)
	for {
		select {
		case <-sub.ctx.Done():
			sub.Close()
			return
		case <-sub.wake:
			sub.mu.Lock()
			next := sub.pending
			sub.pending = nil
			closed := sub.closed
			sub.mu.Unlock()

			if closed {
				return
			}
			if next != nil {
				sub.s.applyRemote(sub, *next)
			}
		}
	}
}

func (s *Sync) detach(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == sub {
		s.sub = nil
		s.scheduleLocked()
	}
}

// acceptsLocked reports whether a delivery from sub may replace the held state. Deliveries
// from a released subscription, for another room, or after a failed load are dropped.
func (s *Sync) acceptsLocked(sub *Subscription, state models.RoomState) bool {
	if s.sub != sub || s.phase == Failed {
		return false
	}
	if state.ID != sub.roomID {
		return false
	}
	return s.state == nil || s.state.ID == sub.roomID
}

// applyRemote replaces the held state with a store record, reconciles the device and
// notifies the subscriber.
func (s *Sync) applyRemote(sub *Subscription, state models.RoomState) {
	nowMs := s.nowMs()

	s.mu.Lock()
	if !s.acceptsLocked(sub, state) {
		s.mu.Unlock()
		return
	}
	var prev *models.RoomState
	var prevDisplayed int64
	if s.state != nil {
		p := *s.state
		prev = &p
		prevDisplayed = ComputeDisplayedPosition(p, nowMs)
	}
	s.state = &state
	s.conf = Confirmed
	if s.phase != Reconciling {
		s.phase = Loaded
	}
	s.lastErr = nil
	s.scheduleLocked()
	recon := s.recon
	s.mu.Unlock()

	if recon {
		s.reconcile(sub.ctx, prev, state, prevDisplayed, nowMs)
	}
	if sub.onUpdate != nil {
		sub.onUpdate(state)
	}
}
