// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

func codeArg() []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: "code", UsageText: "room code"}}
}

// setupCommand writes the config file and prepares the local database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml, run migrations and register the local user",
		Action: r.Setup,
	}
}

// authCommand handles provider connections.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage provider connections",
		Commands: []*cli.Command{
			{
				Name:   "spotify",
				Usage:  "Connect a Spotify account using OAuth2 with PKCE",
				Action: r.AuthSpotify,
			},
			{
				Name:   "status",
				Usage:  "Show connected providers and playback authorization",
				Flags:  outputFlags(),
				Action: r.AuthStatus,
			},
			{
				Name:      "disconnect",
				Usage:     "Remove a stored provider connection",
				Arguments: []cli.Argument{&cli.StringArg{Name: "provider", UsageText: "spotify or apple_music"}},
				Action:    r.AuthDisconnect,
			},
		},
	}
}

// roomCommand handles listening rooms.
func roomCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "room",
		Aliases: []string{"rooms"},
		Usage:   "Create, control and follow listening rooms",
		Commands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Create a room hosted by the current user",
				Flags:  outputFlags(),
				Action: r.RoomCreate,
			},
			{
				Name:      "show",
				Usage:     "Show a room's state and projected position",
				Arguments: codeArg(),
				Flags:     outputFlags(),
				Action:    r.RoomShow,
			},
			{
				Name:      "join",
				Usage:     "Join a room as the current user",
				Arguments: codeArg(),
				Action:    r.RoomJoin,
			},
			{
				Name:      "play",
				Usage:     "Resume the room",
				Arguments: codeArg(),
				Action:    r.RoomPlay,
			},
			{
				Name:      "pause",
				Usage:     "Pause the room",
				Arguments: codeArg(),
				Action:    r.RoomPause,
			},
			{
				Name:      "toggle",
				Usage:     "Toggle play/pause",
				Arguments: codeArg(),
				Action:    r.RoomToggle,
			},
			{
				Name:      "seek",
				Usage:     "Move the room position (e.g. --by -10s or --to 1m30s)",
				Arguments: codeArg(),
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "by",
						Usage: "Relative offset",
					},
					&cli.DurationFlag{
						Name:  "to",
						Usage: "Absolute position",
					},
				},
				Action: r.RoomSeek,
			},
			{
				Name:      "track",
				Usage:     "Search a catalog and make a result the room's track",
				Arguments: codeArg(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Search query",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "provider",
						Aliases: []string{"p"},
						Usage:   "Catalog to search (spotify or apple_music)",
						Value:   "spotify",
					},
					&cli.IntFlag{
						Name:  "pick",
						Usage: "1-based index of the result to use",
						Value: 1,
					},
				},
				Action: r.RoomTrack,
			},
			{
				Name:      "watch",
				Usage:     "Follow a room and keep this device in sync",
				Arguments: codeArg(),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-reconcile",
						Usage: "Print updates without driving the device",
					},
				},
				Action: r.RoomWatch,
			},
			{
				Name:      "history",
				Usage:     "Print or export a room's event log",
				Arguments: codeArg(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, csv, markdown, json)",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.RoomHistory,
			},
			{
				Name:      "archive",
				Usage:     "Export the history of many rooms concurrently",
				ArgsUsage: "[code...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Archive every room in the local store",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, csv, markdown, json)",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output-dir",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: crossplay_export_{timestamp})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent export workers",
						Value: 4,
					},
				},
				Action: r.RoomArchive,
			},
			{
				Name:      "open",
				Aliases:   []string{"ui"},
				Usage:     "Open the interactive room view",
				Arguments: codeArg(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "provider",
						Aliases: []string{"p"},
						Usage:   "Catalog used by search (spotify or apple_music)",
						Value:   "spotify",
					},
					&cli.StringFlag{
						Name:  "log-file",
						Usage: "Where to write logs while the UI runs",
						Value: "crossplay-tui.log",
					},
				},
				Action: r.RoomOpen,
			},
		},
	}
}

// searchCommand searches a provider catalog.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search a provider catalog for tracks",
		Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Catalog to search (spotify or apple_music)",
				Value:   "spotify",
			},
		}, outputFlags()...),
		Action: r.Search,
	}
}

// appleCommand handles Apple Music developer tokens.
func appleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "apple",
		Usage: "Apple Music developer tooling",
		Commands: []*cli.Command{
			{
				Name:   "token",
				Usage:  "Print an Apple Music developer token",
				Action: r.AppleToken,
			},
		},
	}
}
