package roomsync

import (
	"context"

	"github.com/desertthunder/crossplay/internal/models"
)

// reconcile issues the device commands needed for the device to follow next.
//
// prevDisplayed is the projection of prev at the same instant nowMs, so a jump between the
// two larger than the drift tolerance is a remote seek.
func (s *Sync) reconcile(ctx context.Context, prev *models.RoomState, next models.RoomState, prevDisplayed, nowMs int64) {
	id := s.nativeID(next.CurrentTrack)
	if id == "" {
		return
	}

	code := next.RoomCode
	displayed := ComputeDisplayedPosition(next, nowMs)

	if prev == nil || prev.CurrentTrack == nil || !prev.CurrentTrack.SameAs(*next.CurrentTrack) {
		if err := s.ctrl.SetQueue(ctx, []string{id}, next.IsPlaying); err != nil {
			s.notify(s.nativeNotice(code, "Queue", err))
			return
		}
		if next.IsPlaying && displayed > 0 {
			s.seekDevice(ctx, code, displayed)
		}
		return
	}

	np, err := s.ctrl.NowPlaying(ctx)
	if err != nil {
		s.notify(s.nativeNotice(code, "Now playing", err))
		return
	}

	jumped := abs(displayed-prevDisplayed) > s.drift
	switch devicePlaying := np.IsPlaying(); {
	case next.IsPlaying && !devicePlaying:
		if err := s.ctrl.Play(ctx); err != nil {
			s.notify(s.nativeNotice(code, "Play", err))
			return
		}
		s.seekDevice(ctx, code, displayed)
	case !next.IsPlaying && devicePlaying:
		if err := s.ctrl.Pause(ctx); err != nil {
			s.notify(s.nativeNotice(code, "Pause", err))
			return
		}
		if jumped {
			s.seekDevice(ctx, code, displayed)
		}
	case jumped:
		s.seekDevice(ctx, code, displayed)
	}
}

func (s *Sync) seekDevice(ctx context.Context, code string, ms int64) {
	if err := s.ctrl.SeekTo(ctx, ms); err != nil {
		s.notify(s.nativeNotice(code, "Seek", err))
	}
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
