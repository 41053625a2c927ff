// Package roomsync keeps a client's view of a shared listening room in step with the room
// store and with the music player on the local device.
//
// # Timeline
//
// A room holds one playback timeline: the current track, a play flag and a position that was
// true at UpdatedAtMs. Between updates the client projects the position forward with
// [ComputeDisplayedPosition]; a paused room never drifts.
//
// # Local changes
//
// [Sync.SetPlayback], [Sync.SetTrack], [Sync.SeekBy] and [Sync.TogglePlay] apply the new
// state locally first (tagged [Applied]), then write it to the [RoomStore] and append an
// event when the acting user is known. Failed writes are not rolled back; they are reported
// as [Notice] values on [Sync.Notices] and the next echo from the store corrects the view.
//
// # Remote changes
//
// [Sync.Subscribe] opens the store's change feed for a room. Every delivered record replaces
// the held state (tagged [Confirmed]) and, when reconciliation is enabled, the
// [PlaybackController] is told to queue, play, pause or seek so the device follows the room.
// Delivery is serial and the last delivered record wins.
//
// While a subscribed room plays, a projector ticks at the configured interval. It stops as
// soon as the room pauses or the subscription is released.
package roomsync
