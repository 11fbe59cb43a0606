// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the default configuration to the --config path",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// serveCommand runs the request side of the pipeline
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API, answer processor and refresh scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
			&cli.BoolFlag{
				Name:  "workers",
				Usage: "Also run the worker pool in this process (always on with the memory queue backend)",
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Disable periodic playlist refreshes",
			},
		},
		Action: r.Serve,
	}
}

func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run a worker pool against the shared task queue",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Execution slots (default: worker.concurrency)",
			},
		},
		Action: r.Worker,
	}
}

func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "download",
		Aliases: []string{"dl"},
		Usage:   "Submit a video download",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "requester",
				Aliases: []string{"r"},
				Usage:   "Requester id notified when the download resolves",
				Value:   "cli",
			},
			&cli.StringFlag{
				Name:  "ref",
				Usage: "Opaque request reference echoed in the notification",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Download,
	}
}

// playlistCommand handles playlist subscriptions
func playlistCommand(r *Runner) *cli.Command {
	requester := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "requester",
			Aliases: []string{"r"},
			Usage:   "Requester id",
			Value:   "cli",
		}
	}

	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Playlist subscriptions and refreshes",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Subscribe to a playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
				Flags:     []cli.Flag{requester()},
				Action:    r.PlaylistAdd,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Unsubscribe from a playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
				Flags:     []cli.Flag{requester()},
				Action:    r.PlaylistRemove,
			},
			{
				Name:      "refresh",
				Usage:     "Refresh one playlist, or every tracked playlist with --all",
				Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Refresh every eligible playlist",
					},
					&cli.BoolFlag{
						Name:  "upload",
						Usage: "Download new videos and notify subscribers",
						Value: true,
					},
				},
				Action: r.PlaylistRefresh,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List tracked playlists, or one requester's subscriptions with --requester",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "requester",
						Aliases: []string{"r"},
						Usage:   "Requester id",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.PlaylistList,
			},
			{
				Name:      "export",
				Usage:     "Export a playlist with its videos and subscribers",
				Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "csv, markdown, txt or json",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: {platform}_{id}.{ext})",
					},
				},
				Action: r.PlaylistExport,
			},
		},
	}
}
