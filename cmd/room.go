package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crossplay/internal/formatter"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/roomsync"
	"github.com/desertthunder/crossplay/internal/shared"
	"github.com/desertthunder/crossplay/internal/tasks"
	"github.com/urfave/cli/v3"
)

// RoomView is the printable state of a room at a moment in time.
type RoomView struct {
	Room         models.RoomState `json:"room"`
	DisplayedMs  int64            `json:"displayed_ms"`
	Confirmation string           `json:"confirmation"`
}

type roomLister interface {
	Rooms(ctx context.Context) ([]models.RoomState, error)
}

// openRoom resolves the acting user and loads the room named by the code argument.
func (r *Runner) openRoom(ctx context.Context, cmd *cli.Command, reconcile bool) (*roomsync.Sync, models.RoomState, error) {
	code := cmd.StringArg("code")
	if code == "" {
		return nil, models.RoomState{}, fmt.Errorf("%w: room code", shared.ErrMissingArgument)
	}

	userID, err := r.actor(ctx, cmd)
	if err != nil {
		return nil, models.RoomState{}, err
	}

	sync := r.newSync(ctx, userID, reconcile)
	room, err := sync.LoadRoom(ctx, code)
	if err != nil {
		return nil, models.RoomState{}, err
	}
	return sync, room, nil
}

// RoomCreate creates a room hosted by the current user.
func (r *Runner) RoomCreate(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}

	sync := r.newSync(ctx, userID, false)
	room, err := sync.CreateRoom(ctx, userID)
	if err != nil {
		return err
	}
	r.logger.Info("room created", "code", room.RoomCode, "id", room.ID)

	if cmd.Bool("json") {
		return r.writeJSON(room, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Created room %s\n", room.RoomCode)
}

// RoomJoin records the current user as a member of the room.
func (r *Runner) RoomJoin(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}

	room, err := r.newSync(ctx, userID, false).JoinRoom(ctx, cmd.StringArg("code"), userID)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Joined room %s\n", room.RoomCode)
}

// RoomShow prints the room with its position projected to now.
func (r *Runner) RoomShow(ctx context.Context, cmd *cli.Command) error {
	sync, _, err := r.openRoom(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer sync.Close()

	proj := sync.Projection()
	view := RoomView{Room: proj.State, DisplayedMs: proj.DisplayedMs, Confirmation: proj.Confirmation.String()}
	if cmd.Bool("json") {
		return r.writeJSON(view, cmd.Bool("pretty"))
	}
	r.printRoom(view.Room, view.DisplayedMs)
	return nil
}

func (r *Runner) printRoom(room models.RoomState, displayedMs int64) {
	r.writePlainHeader(fmt.Sprintf("Room %s", room.RoomCode))
	if room.CurrentTrack == nil {
		r.writePlain("Track:    (none)\n")
	} else {
		r.writePlain("Track:    %s\n", room.CurrentTrack)
	}
	state := "paused"
	if room.IsPlaying {
		state = "playing"
	}
	r.writePlain("State:    %s\n", state)
	r.writePlain("Position: %s / %s\n", formatter.FormatPosition(displayedMs), formatter.FormatPosition(room.DurationMs()))
}

// RoomPlay resumes the room at its projected position. A playing room is left alone.
func (r *Runner) RoomPlay(ctx context.Context, cmd *cli.Command) error {
	return r.playback(ctx, cmd, "play", func(ctx context.Context, s *roomsync.Sync, cur models.RoomState) (models.RoomState, error) {
		if cur.IsPlaying {
			return cur, nil
		}
		return s.TogglePlay(ctx, cur)
	})
}

// RoomPause pauses the room at its projected position. A paused room is left alone.
func (r *Runner) RoomPause(ctx context.Context, cmd *cli.Command) error {
	return r.playback(ctx, cmd, "pause", func(ctx context.Context, s *roomsync.Sync, cur models.RoomState) (models.RoomState, error) {
		if !cur.IsPlaying {
			return cur, nil
		}
		return s.TogglePlay(ctx, cur)
	})
}

// RoomToggle flips the room between playing and paused.
func (r *Runner) RoomToggle(ctx context.Context, cmd *cli.Command) error {
	return r.playback(ctx, cmd, "toggle", func(ctx context.Context, s *roomsync.Sync, cur models.RoomState) (models.RoomState, error) {
		return s.TogglePlay(ctx, cur)
	})
}

// RoomSeek moves the room by --by or to --to, clamped to the track.
func (r *Runner) RoomSeek(ctx context.Context, cmd *cli.Command) error {
	by, to := cmd.Duration("by"), cmd.Duration("to")
	switch {
	case cmd.IsSet("by") && cmd.IsSet("to"):
		return fmt.Errorf("%w: cannot specify both --by and --to", shared.ErrInvalidArgument)
	case cmd.IsSet("to"):
		if to < 0 {
			return fmt.Errorf("%w: --to must not be negative", shared.ErrInvalidArgument)
		}
		return r.playback(ctx, cmd, "seek", func(ctx context.Context, s *roomsync.Sync, cur models.RoomState) (models.RoomState, error) {
			displayed := roomsync.ComputeDisplayedPosition(cur, r.clock().UnixMilli())
			return s.SeekBy(ctx, cur, to.Milliseconds()-displayed)
		})
	case cmd.IsSet("by"):
		return r.playback(ctx, cmd, "seek", func(ctx context.Context, s *roomsync.Sync, cur models.RoomState) (models.RoomState, error) {
			return s.SeekBy(ctx, cur, by.Milliseconds())
		})
	default:
		return fmt.Errorf("%w: --by or --to", shared.ErrMissingArgument)
	}
}

// RoomTrack searches a catalog and makes the picked result the room's track.
func (r *Runner) RoomTrack(ctx context.Context, cmd *cli.Command) error {
	provider, err := models.ParseProviderKey(cmd.String("provider"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	catalog, err := r.catalog(ctx, provider, "")
	if err != nil {
		return err
	}
	tracks, err := catalog.Search(ctx, cmd.String("query"))
	if err != nil {
		return err
	}

	pick := int(cmd.Int("pick"))
	if pick < 1 || pick > len(tracks) {
		return fmt.Errorf("%w: --pick %d, got %d results", shared.ErrInvalidArgument, pick, len(tracks))
	}
	track := tracks[pick-1]

	return r.playback(ctx, cmd, "track", func(ctx context.Context, s *roomsync.Sync, cur models.RoomState) (models.RoomState, error) {
		return s.SetTrack(ctx, cur, track)
	})
}

// playback loads the room, applies fn and reports the outcome along with any device notices.
//
// A device that rejects the command does not fail it: the room was still updated.
func (r *Runner) playback(ctx context.Context, cmd *cli.Command, name string, fn func(context.Context, *roomsync.Sync, models.RoomState) (models.RoomState, error)) error {
	sync, cur, err := r.openRoom(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer sync.Close()

	next, err := fn(ctx, sync, cur)
	if err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	r.drainNotices(sync)

	r.printRoom(next, sync.Projection().DisplayedMs)
	return nil
}

func (r *Runner) drainNotices(sync *roomsync.Sync) {
	for {
		select {
		case n := <-sync.Notices():
			r.writePlain("⚠ %s\n", n.Message)
		default:
			return
		}
	}
}

// RoomWatch follows the room until interrupted, printing every change and device notice.
func (r *Runner) RoomWatch(ctx context.Context, cmd *cli.Command) error {
	code := cmd.StringArg("code")
	userID, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}

	sync := r.newSync(ctx, userID, !cmd.Bool("no-reconcile"))
	defer sync.Close()

	updates := make(chan models.RoomState, 16)
	onUpdate := func(state models.RoomState) {
		select {
		case updates <- state:
		default:
			r.logger.Debug("dropped room update", "room", state.RoomCode)
		}
	}

	err = sync.WithSubscription(ctx, code, onUpdate, func(ctx context.Context, sub *roomsync.Subscription) error {
		r.writePlain("→ Watching room %s (Ctrl+C to stop)\n", sub.RoomCode())
		r.printLine(sync.Projection())

		for {
			select {
			case <-updates:
				r.printLine(sync.Projection())
			case n := <-sync.Notices():
				r.writePlain("⚠ %s\n", n.Message)
			case <-sub.Done():
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) printLine(proj roomsync.Projection) {
	r.writePlain("%s %s\n", r.clock().Format(time.TimeOnly), describeState(proj.State, proj.DisplayedMs))
}

func describeState(state models.RoomState, displayedMs int64) string {
	track := "(no track)"
	if state.CurrentTrack != nil {
		track = state.CurrentTrack.String()
	}
	mark := "⏸"
	if state.IsPlaying {
		mark = "▶"
	}
	return fmt.Sprintf("%s %s %s / %s", mark, track, formatter.FormatPosition(displayedMs), formatter.FormatPosition(state.DurationMs()))
}

// RoomHistory prints the room's event log or writes it to --output.
func (r *Runner) RoomHistory(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	code := cmd.StringArg("code")
	if code == "" {
		return fmt.Errorf("%w: room code", shared.ErrMissingArgument)
	}
	if err := r.openStore(ctx); err != nil {
		return err
	}

	engine := tasks.NewArchiveEngine(r.store, shared.WithLogger(r.logger, "component", "archive"))
	h, err := engine.History(ctx, code)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(h, format, path)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Wrote %d events to %s\n", len(h.Events), written)
	}

	data, err := formatter.Export(h, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// RoomArchive exports the history of every named room, or of every local room with --all.
func (r *Runner) RoomArchive(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.openStore(ctx); err != nil {
		return err
	}

	codes := cmd.Args().Slice()
	if cmd.Bool("all") {
		lister, ok := r.store.(roomLister)
		if !ok {
			return fmt.Errorf("%w: --all with the %s store", shared.ErrNotImplemented, r.config.Store.Driver)
		}
		rooms, err := lister.Rooms(ctx)
		if err != nil {
			return err
		}
		for _, room := range rooms {
			codes = append(codes, room.RoomCode)
		}
	}
	if len(codes) == 0 {
		return fmt.Errorf("%w: room codes or --all", shared.ErrMissingArgument)
	}

	engine := tasks.NewArchiveEngine(r.store, shared.WithLogger(r.logger, "component", "archive"))
	prog := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range prog {
			r.logger.Info(u.Message, "phase", u.Phase, "step", u.Step, "total", u.Total)
		}
	}()

	result, err := engine.BulkExport(ctx, prog, codes, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output-dir"),
		NumWorkers: int(cmd.Int("workers")),
	})
	close(prog)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("✓ Archived %d/%d rooms to %s\n", result.SuccessfulExports, result.TotalRooms, result.OutputDirectory)
	for _, res := range result.Results {
		if !res.Success {
			r.writePlain("✗ %s: %s\n", res.RoomCode, res.Message)
		}
	}
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	return nil
}
