// package tasks implements long-running room operations that report progress.
//
// The core abstraction is ArchiveEngine, which reads rooms and their event logs from a store and
// writes them out through the formatter. Operations emit progress updates via channels for
// non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossplay/internal/formatter"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

// HistorySource reads rooms and their audit logs. Every room store satisfies it.
type HistorySource interface {
	FetchByCode(ctx context.Context, code string) (models.RoomState, error)
	ListEvents(ctx context.Context, roomID string) ([]models.RoomEvent, error)
}

// ArchiveEngine exports room histories.
type ArchiveEngine struct {
	source HistorySource
	names  map[string]string
	logger *log.Logger
}

// NewArchiveEngine creates an engine reading from source.
func NewArchiveEngine(source HistorySource, logger *log.Logger) *ArchiveEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ArchiveEngine{source: source, logger: logger}
}

// WithNames sets the user id to username map printed in place of actor ids.
func (e *ArchiveEngine) WithNames(names map[string]string) *ArchiveEngine {
	e.names = names
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func (e *ArchiveEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// History loads the room matching code together with its event log.
func (e *ArchiveEngine) History(ctx context.Context, code string) (*formatter.History, error) {
	if e.source == nil {
		return nil, fmt.Errorf("%w: room store not initialized", shared.ErrServiceUnavailable)
	}

	room, err := e.source.FetchByCode(ctx, models.NormalizeRoomCode(code))
	if err != nil {
		return nil, err
	}

	events, err := e.source.ListEvents(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for room %s: %w", room.RoomCode, err)
	}

	e.logger.Debug("loaded history", "room", room.RoomCode, "events", len(events))
	return &formatter.History{Room: room, Events: events, Names: e.names}, nil
}
