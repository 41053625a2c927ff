package roomsync

import "github.com/desertthunder/crossplay/internal/models"

// ComputeDisplayedPosition projects the playback offset of state at nowMs.
//
// A paused room reports its stored position unchanged. A playing room advances by the time
// elapsed since UpdatedAtMs (never backwards when the local clock is behind), clamped to
// [0, duration] when the track duration is known.
func ComputeDisplayedPosition(state models.RoomState, nowMs int64) int64 {
	if !state.IsPlaying {
		return state.PositionMs
	}

	pos := state.PositionMs
	if elapsed := nowMs - state.UpdatedAtMs; elapsed > 0 {
		pos += elapsed
	}
	return clampPosition(pos, state.DurationMs())
}

// clampPosition bounds pos to [0, durationMs]; a non-positive duration leaves the upper bound open.
func clampPosition(pos, durationMs int64) int64 {
	if pos < 0 {
		return 0
	}
	if durationMs > 0 && pos > durationMs {
		return durationMs
	}
	return pos
}
