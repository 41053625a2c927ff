package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/roomsync"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSubscribed MsgKind = iota
	MsgRoomUpdated
	MsgTick
	MsgActionDone
	MsgSearchDone
	MsgNotice
)

type subscribed struct {
	sub *roomsync.Subscription
	err error
}

type actionDone struct {
	name  string
	state models.RoomState
	err   error
}

type searchDone struct {
	query  string
	tracks []models.UniversalTrack
	err    error
}

// subscribedMsg is the constructor for [MsgSubscribed]
func subscribedMsg(sub *roomsync.Subscription, err error) Msg {
	return Msg{kind: MsgSubscribed, data: subscribed{sub, err}}
}

// roomUpdatedMsg is the constructor for [MsgRoomUpdated]
func roomUpdatedMsg(state models.RoomState) Msg {
	return Msg{kind: MsgRoomUpdated, data: state}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(name string, state models.RoomState, err error) Msg {
	return Msg{kind: MsgActionDone, data: actionDone{name, state, err}}
}

// searchDoneMsg is the constructor for [MsgSearchDone]
func searchDoneMsg(query string, tracks []models.UniversalTrack, err error) Msg {
	return Msg{kind: MsgSearchDone, data: searchDone{query, tracks, err}}
}

// noticeMsg is the constructor for [MsgNotice]
func noticeMsg(n roomsync.Notice) Msg {
	return Msg{kind: MsgNotice, data: n}
}
