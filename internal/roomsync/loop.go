package roomsync

import (
	"sync"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
)

// loop runs fn on a fixed interval until stopped.
//
// Stop never waits for an in-flight fn; callbacks compare their loop against the one the
// [Sync] currently holds so a stopped loop has no further effect.
type loop struct {
	stop chan struct{}
	once sync.Once
}

func startLoop(interval time.Duration, fn func(l *loop)) *loop {
	l := &loop{stop: make(chan struct{})}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-t.C:
				fn(l)
			}
		}
	}()
	return l
}

func (l *loop) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// scheduleLocked starts or stops the projector and the re-read loop to match the held state.
//
// The projector runs only while a subscribed room is playing.
func (s *Sync) scheduleLocked() {
	subscribed := s.sub != nil
	playing := s.state != nil && s.state.IsPlaying

	switch wantTick := subscribed && playing; {
	case wantTick && s.ticker == nil:
		s.ticker = startLoop(s.tick, s.projectTick)
	case !wantTick && s.ticker != nil:
		s.ticker.Stop()
		s.ticker = nil
	}

	switch wantResync := subscribed && s.resync > 0; {
	case wantResync && s.resyncer == nil:
		s.resyncer = startLoop(s.resync, s.resyncTick)
	case !wantResync && s.resyncer != nil:
		s.resyncer.Stop()
		s.resyncer = nil
	}
}

func (s *Sync) projectTick(l *loop) {
	s.mu.Lock()
	if s.ticker != l {
		s.mu.Unlock()
		return
	}
	p := s.projectionLocked(s.nowMs())
	cb := s.onTick
	s.mu.Unlock()

	if cb != nil {
		cb(p)
	}
}

// resyncTick re-reads the room and feeds it through the subscription when it changed.
// It is skipped while a local write is in flight so an older record cannot mask it.
func (s *Sync) resyncTick(l *loop) {
	s.mu.Lock()
	if s.resyncer != l || s.sub == nil || s.inflight > 0 {
		s.mu.Unlock()
		return
	}
	sub := s.sub
	var cur *models.RoomState
	if s.state != nil {
		c := *s.state
		cur = &c
	}
	s.mu.Unlock()

	fresh, err := s.store.FetchByCode(sub.ctx, sub.code)
	if err != nil {
		s.logger.Debug("room re-read failed", "room", sub.code, "err", err)
		return
	}
	if cur != nil && sameTimeline(*cur, fresh) {
		return
	}
	sub.enqueue(fresh)
}

// sameTimeline reports whether a and b describe the same playback timeline.
func sameTimeline(a, b models.RoomState) bool {
	if a.IsPlaying != b.IsPlaying || a.PositionMs != b.PositionMs || a.UpdatedAtMs != b.UpdatedAtMs {
		return false
	}
	switch {
	case a.CurrentTrack == nil && b.CurrentTrack == nil:
		return true
	case a.CurrentTrack == nil || b.CurrentTrack == nil:
		return false
	default:
		return a.CurrentTrack.SameAs(*b.CurrentTrack)
	}
}
