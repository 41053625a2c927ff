package roomsync

import (
	"context"
	"fmt"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

// RoomStore is the durable home of room state plus its realtime change feed.
//
// Writes are last-write-wins: Update carries no version token.
type RoomStore interface {
	// FetchByCode returns the room whose code matches, wrapping [shared.ErrRoomNotFound] when none does.
	FetchByCode(ctx context.Context, code string) (models.RoomState, error)

	// Update writes the non-nil fields of u to the room.
	Update(ctx context.Context, roomID string, u models.RoomUpdate) error

	// InsertEvent appends an audit record.
	InsertEvent(ctx context.Context, e models.RoomEvent) error

	// Subscribe calls fn with the full room state after every committed change to roomID
	// until the returned handle is released.
	Subscribe(ctx context.Context, roomID string, fn func(models.RoomState)) (Handle, error)

	// CreateRoom inserts a new room, wrapping [shared.ErrRoomCodeTaken] when the code is in use.
	CreateRoom(ctx context.Context, room models.RoomState) error

	// AddMember records that userID joined roomID. Repeated calls are no-ops.
	AddMember(ctx context.Context, roomID, userID string) error

	// ListEvents returns the audit log of roomID, oldest first.
	ListEvents(ctx context.Context, roomID string) ([]models.RoomEvent, error)
}

// Handle releases a store subscription.
type Handle interface {
	Unsubscribe() error
}

// HandleFunc adapts a function to [Handle].
type HandleFunc func() error

func (f HandleFunc) Unsubscribe() error { return f() }

// PlaybackController drives playback on the local device for one provider.
type PlaybackController interface {
	Provider() models.ProviderKey
	Available() bool
	RequestAuthorization(ctx context.Context) (models.AuthorizationStatus, error)
	SetQueue(ctx context.Context, ids []string, autoplay bool) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SkipNext(ctx context.Context) error
	SkipPrevious(ctx context.Context) error
	SeekTo(ctx context.Context, ms int64) error
	// NowPlaying returns nil without error when nothing is loaded on the device.
	NowPlaying(ctx context.Context) (*models.NowPlaying, error)
}

// NoopController is the controller used when no device playback is configured.
// It is never available, so RoomSync only mutates shared state.
type NoopController struct{}

var errNoController = fmt.Errorf("%w: no playback controller configured", shared.ErrNativeCommandFailed)

func (NoopController) Provider() models.ProviderKey { return "" }
func (NoopController) Available() bool              { return false }

func (NoopController) RequestAuthorization(context.Context) (models.AuthorizationStatus, error) {
	return models.AuthorizationUnavailable, nil
}

func (NoopController) SetQueue(context.Context, []string, bool) error { return errNoController }
func (NoopController) Play(context.Context) error                     { return errNoController }
func (NoopController) Pause(context.Context) error                    { return errNoController }
func (NoopController) SkipNext(context.Context) error                 { return errNoController }
func (NoopController) SkipPrevious(context.Context) error             { return errNoController }
func (NoopController) SeekTo(context.Context, int64) error            { return errNoController }

func (NoopController) NowPlaying(context.Context) (*models.NowPlaying, error) {
	return nil, nil
}
