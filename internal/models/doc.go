// Package models defines the domain values shared by the room synchronization engine, its stores and its controllers.
//
// The package contains three categories of types:
//
// 1. Shared room state: values that live in the RoomStore and are mutated by any participant
//   - [RoomState] : The synchronized timeline of a room (track, play flag, position, timestamp)
//   - [UniversalTrack] : A track normalized across providers with per-provider identifiers
//   - [RoomUpdate] : A partial write of room fields
//
// 2. Audit records: append-only values that are written but never read back by the engine
//   - [RoomEvent] : A PLAYBACK_UPDATE or SET_TRACK log entry tagged with the acting user
//
// 3. Device values: what a native playback controller reports or requires
//   - [NowPlaying] : Device now-playing snapshot
//   - [PlaybackState] : Device playback state numbering
//   - [AuthorizationStatus] : Device authorization status, where only [AuthorizationAuthorized] grants control
//
// [User] and [Member] identify who acts in a room.
//
// Room codes are compared case-insensitively; [NormalizeRoomCode] produces the canonical upper-case form.
package models
