package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchRoom Phase = iota
	ExportHistory
)

func (p Phase) String() string {
	switch p {
	case FetchRoom:
		return "fetch_room"
	case ExportHistory:
		return "export_history"
	default:
		return ""
	}
}

func fetchingRoomUpdate(step, total int, code string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchRoom,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching room %s...", step, total, code),
	}
}

func exportCompletedUpdate(step, total int, res RoomExportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportHistory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d events)", step, total, res.RoomCode, res.Events),
		Data:    res,
	}
}

func exportFailedUpdate(step, total int, code string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportHistory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, code, err),
	}
}
