package roomsync

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

// SetPlayback applies intent on top of current and publishes the result.
//
// The returned state is applied locally before the store is written. Store and event
// failures are reported on [Sync.Notices]; the local state is kept either way.
func (s *Sync) SetPlayback(ctx context.Context, current models.RoomState, intent models.PlaybackIntent) (models.RoomState, error) {
	if current.ID == "" {
		return current, shared.ErrRoomNotLoaded
	}

	now := s.now()
	ms := now.UnixMilli()

	next := current
	if intent.IsPlaying != nil {
		next.IsPlaying = *intent.IsPlaying
	}
	if intent.PositionMs != nil {
		next.PositionMs = max(0, *intent.PositionMs)
	}
	next.UpdatedAtMs = ms

	playing, pos := next.IsPlaying, next.PositionMs
	update := models.RoomUpdate{IsPlaying: &playing, PositionMs: &pos, UpdatedAtMs: &ms}
	s.publish(ctx, next, update, models.EventPlaybackUpdate, update, now)
	return next, nil
}

// SetTrack makes track the room's track, paused at the start.
//
// Once the store accepts the change the track is queued on the device when the controller
// can play it.
func (s *Sync) SetTrack(ctx context.Context, current models.RoomState, track models.UniversalTrack) (models.RoomState, error) {
	if current.ID == "" {
		return current, shared.ErrRoomNotLoaded
	}
	if track.DurationMs < 0 {
		return current, fmt.Errorf("%w: negative track duration", shared.ErrInvalidInput)
	}

	now := s.now()
	ms := now.UnixMilli()
	paused, start := false, int64(0)

	next := current
	next.CurrentTrack = &track
	next.IsPlaying = paused
	next.PositionMs = start
	next.UpdatedAtMs = ms

	update := models.RoomUpdate{IsPlaying: &paused, PositionMs: &start, UpdatedAtMs: &ms, CurrentTrack: &track}
	if !s.publish(ctx, next, update, models.EventSetTrack, track, now) {
		return next, nil
	}

	if id := s.nativeID(&track); id != "" {
		if err := s.ctrl.SetQueue(ctx, []string{id}, false); err != nil {
			s.notify(s.nativeNotice(next.RoomCode, "Queue", err))
		}
	}
	return next, nil
}

// SeekBy moves the displayed position by deltaMs, clamped to the track.
func (s *Sync) SeekBy(ctx context.Context, current models.RoomState, deltaMs int64) (models.RoomState, error) {
	if current.ID == "" {
		return current, shared.ErrRoomNotLoaded
	}

	displayed := ComputeDisplayedPosition(current, s.nowMs())
	target := clampPosition(displayed+deltaMs, current.DurationMs())

	if s.nativeID(current.CurrentTrack) != "" {
		if err := s.ctrl.SeekTo(ctx, target); err != nil {
			s.notify(s.nativeNotice(current.RoomCode, "Seek", err))
		}
	}
	return s.SetPlayback(ctx, current, models.At(target))
}

// TogglePlay pauses a playing room or resumes a paused one at the displayed position.
//
// Resuming a track the device can play requires playback authorization; without it the
// room is left untouched and [shared.ErrAuthorizationDenied] is returned.
func (s *Sync) TogglePlay(ctx context.Context, current models.RoomState) (models.RoomState, error) {
	if current.ID == "" {
		return current, shared.ErrRoomNotLoaded
	}

	displayed := ComputeDisplayedPosition(current, s.nowMs())
	id := s.nativeID(current.CurrentTrack)

	if current.IsPlaying {
		if id != "" {
			if err := s.ctrl.Pause(ctx); err != nil {
				s.notify(s.nativeNotice(current.RoomCode, "Pause", err))
			}
		}
		return s.SetPlayback(ctx, current, models.Playing(false).With(displayed))
	}

	if id != "" {
		status, err := s.ctrl.RequestAuthorization(ctx)
		if err != nil || !status.Authorized() {
			n := s.authorizationNotice(current.RoomCode, status)
			if err != nil {
				n.Err = fmt.Errorf("%w: %w", shared.ErrAuthorizationDenied, err)
			}
			s.notify(n)
			return current, n.Err
		}
		s.resumeDevice(ctx, current, id, displayed)
	}
	return s.SetPlayback(ctx, current, models.Playing(true).With(displayed))
}

// resumeDevice starts the room's track on the device at positionMs, queueing it first when
// the device has something else loaded.
func (s *Sync) resumeDevice(ctx context.Context, room models.RoomState, id string, positionMs int64) {
	np, err := s.ctrl.NowPlaying(ctx)
	if err != nil || !deviceHasTrack(np, room.CurrentTrack) {
		if err := s.ctrl.SetQueue(ctx, []string{id}, false); err != nil {
			s.notify(s.nativeNotice(room.RoomCode, "Queue", err))
		}
		if positionMs > 0 {
			if err := s.ctrl.SeekTo(ctx, positionMs); err != nil {
				s.notify(s.nativeNotice(room.RoomCode, "Seek", err))
			}
		}
	}
	if err := s.ctrl.Play(ctx); err != nil {
		s.notify(s.nativeNotice(room.RoomCode, "Play", err))
	}
}

// publish applies next locally, writes update to the store and appends the event.
// It reports whether the store write succeeded.
func (s *Sync) publish(ctx context.Context, next models.RoomState, update models.RoomUpdate, kind models.EventType, payload any, now time.Time) bool {
	s.mu.Lock()
	local := next
	s.state = &local
	s.conf = Applied
	s.phase = Reconciling
	s.inflight++
	actor := s.actor
	s.scheduleLocked()
	s.mu.Unlock()

	defer s.settle()

	if err := s.store.Update(ctx, next.ID, update); err != nil {
		s.notify(s.storeWriteNotice(next.RoomCode, "room state", err))
		return false
	}

	if actor == "" {
		return true
	}

	ev, err := models.NewRoomEvent(next.ID, kind, payload, actor)
	if err == nil {
		ev.ID = shared.NewEventID(now)
		ev.CreatedAt = now.UTC()
		err = s.store.InsertEvent(ctx, ev)
	}
	if err != nil {
		s.notify(s.storeWriteNotice(next.RoomCode, "room history", err))
	}
	return true
}

func (s *Sync) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 && s.phase == Reconciling {
		s.phase = Loaded
	}
}

// nativeID returns the id the device plays track by, or "" when the device cannot play it.
func (s *Sync) nativeID(track *models.UniversalTrack) string {
	if track == nil || !s.ctrl.Available() {
		return ""
	}
	return track.ProviderID(s.ctrl.Provider())
}

func deviceHasTrack(np *models.NowPlaying, track *models.UniversalTrack) bool {
	if np == nil || track == nil {
		return false
	}
	return models.NormalizeTrackKey(np.Title, np.Artist) == models.NormalizeTrackKey(track.Title, track.Artist)
}
