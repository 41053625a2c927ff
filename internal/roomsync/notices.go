package roomsync

import (
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

// Notice is a non-blocking report of a failure that did not abort the operation.
//
// Err wraps one of [shared.ErrStoreWriteFailed], [shared.ErrNativeCommandFailed] or
// [shared.ErrAuthorizationDenied].
type Notice struct {
	RoomCode string
	Err      error
	Message  string
	At       time.Time
}

func (n Notice) String() string {
	return n.Message
}

// Is reports whether the notice was caused by target.
func (n Notice) Is(target error) bool {
	return errors.Is(n.Err, target)
}

// notify sends n without blocking; notices are dropped when the buffer is full.
func (s *Sync) notify(n Notice) {
	s.logger.Warn(n.Message, "err", n.Err)
	if s.notices == nil {
		return
	}
	select {
	case s.notices <- n:
	default:
	}
}

func (s *Sync) storeWriteNotice(code, what string, err error) Notice {
	return Notice{
		RoomCode: code,
		Err:      fmt.Errorf("%w: %s: %w", shared.ErrStoreWriteFailed, what, err),
		Message:  fmt.Sprintf("Could not save %s for room %s; your change is shown locally only", what, code),
		At:       s.now(),
	}
}

func (s *Sync) nativeNotice(code, command string, err error) Notice {
	return Notice{
		RoomCode: code,
		Err:      fmt.Errorf("%w: %s: %w", shared.ErrNativeCommandFailed, command, err),
		Message:  fmt.Sprintf("%s failed on this device", command),
		At:       s.now(),
	}
}

func (s *Sync) authorizationNotice(code string, status models.AuthorizationStatus) Notice {
	return Notice{
		RoomCode: code,
		Err:      fmt.Errorf("%w: status %s", shared.ErrAuthorizationDenied, status),
		Message:  fmt.Sprintf("Playback permission is %s; grant access to control music on this device", status),
		At:       s.now(),
	}
}
