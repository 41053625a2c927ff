// Package ui implements the interactive room view using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [RoomView] : Room code, current track, play state and a progress bar of the projected position
//  2. [SearchView] : Query a catalog and pick a result as the room's next track
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Remote changes arrive through a [roomsync.Subscription]; the model keeps only the latest undelivered state.
// A one second tick re-projects the position and is only scheduled while the room plays.
// Non-fatal failures reported on [roomsync.Sync.Notices] are shown in the status line.
//
// Keyboard bindings (space, ←/→, /, enter, esc, q) are listed with charmbracelet/bubbles/help.
package ui
