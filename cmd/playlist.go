package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tubeq/internal/formatter"
	"github.com/desertthunder/tubeq/internal/shared"
	"github.com/desertthunder/tubeq/internal/tasks"
	"github.com/urfave/cli/v3"
)

func urlArg(cmd *cli.Command) (string, error) {
	url := cmd.StringArg("url")
	if url == "" {
		return "", fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}
	return url, nil
}

// PlaylistAdd subscribes the requester to a playlist. A newly tracked playlist gets a
// discovery refresh that records its current videos without downloading them.
func (r *Runner) PlaylistAdd(ctx context.Context, cmd *cli.Command) error {
	url, err := urlArg(cmd)
	if err != nil {
		return err
	}

	p, err := r.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	var sub *tasks.Subscription
	err = p.runInline(ctx, func(ctx context.Context) error {
		var serr error
		sub, serr = p.router.SubmitPlaylistSubscription(ctx, url, tasks.Requester{ID: cmd.String("requester")})
		return serr
	})
	if err != nil {
		return err
	}

	switch {
	case !sub.Subscribed:
		return r.writePlain("already subscribed to %s\n", sub.Playlist)
	case sub.Created:
		return r.writePlain("✓ subscribed to %s (new playlist, refresh=%v)\n", sub.Playlist, sub.Refreshing)
	default:
		return r.writePlain("✓ subscribed to %s\n", sub.Playlist)
	}
}

// PlaylistRemove unsubscribes the requester. The playlist itself stays tracked.
func (r *Runner) PlaylistRemove(ctx context.Context, cmd *cli.Command) error {
	url, err := urlArg(cmd)
	if err != nil {
		return err
	}

	p, err := r.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	removed, err := p.router.Unsubscribe(ctx, url, cmd.String("requester"))
	if err != nil {
		return err
	}
	if !removed {
		return r.writePlain("not subscribed to %s\n", url)
	}
	return r.writePlain("✓ unsubscribed from %s\n", url)
}

// PlaylistRefresh triggers a refresh of one playlist, or of every eligible one with --all.
func (r *Runner) PlaylistRefresh(ctx context.Context, cmd *cli.Command) error {
	all := cmd.Bool("all")
	upload := cmd.Bool("upload")

	url := cmd.StringArg("url")
	if url == "" && !all {
		return fmt.Errorf("%w: url or --all", shared.ErrMissingArgument)
	}

	p, err := r.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	return p.runInline(ctx, func(ctx context.Context) error {
		if all {
			report, err := p.router.RefreshAll(ctx, upload)
			if err != nil {
				return err
			}
			return r.writePlain("triggered %d, skipped %d\n", report.Triggered, report.Skipped)
		}

		key, triggered, err := p.router.RefreshPlaylist(ctx, url, upload)
		if err != nil {
			return err
		}
		if !triggered {
			return r.writePlain("%s is already refreshing\n", key)
		}
		return r.writePlain("✓ refreshing %s (upload=%v)\n", key, upload)
	})
}

type playlistRow struct {
	Platform      string     `json:"platform"`
	PlaylistID    string     `json:"playlist_id"`
	URL           string     `json:"url"`
	Updating      bool       `json:"updating"`
	UpdatingSince *time.Time `json:"updating_since,omitempty"`
}

// PlaylistList prints every tracked playlist, or the subscriptions of --requester.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	p, err := r.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	if requester := cmd.String("requester"); requester != "" {
		subs, err := p.router.Subscriptions(ctx, requester)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(subs, true)
		}

		r.writePlainHeader(fmt.Sprintf("Subscriptions of %s", requester))
		for _, s := range subs {
			r.writePlain("%s:%s  %s\n", s.Platform, s.PlaylistID, s.URL)
		}
		return nil
	}

	playlists, err := p.store.ListPlaylists(ctx)
	if err != nil {
		return err
	}

	rows := make([]playlistRow, 0, len(playlists))
	for _, pl := range playlists {
		url, _ := p.registry.PlaylistURL(pl.Key)
		rows = append(rows, playlistRow{
			Platform:      pl.Key.Platform,
			PlaylistID:    pl.Key.ID,
			URL:           url,
			Updating:      pl.Updating,
			UpdatingSince: pl.UpdatingSince,
		})
	}
	if cmd.Bool("json") {
		return r.writeJSON(rows, true)
	}

	r.writePlainHeader(fmt.Sprintf("Tracked playlists (%d)", len(rows)))
	for _, row := range rows {
		state := "idle"
		if row.Updating {
			state = "updating"
		}
		r.writePlain("%s:%s  %-8s  %s\n", row.Platform, row.PlaylistID, state, row.URL)
	}
	return nil
}

// PlaylistExport writes a playlist, its known videos and its subscribers to a file.
func (r *Runner) PlaylistExport(ctx context.Context, cmd *cli.Command) error {
	url, err := urlArg(cmd)
	if err != nil {
		return err
	}

	p, err := r.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	key, err := p.registry.ResolvePlaylist(url)
	if err != nil {
		return err
	}
	export, err := p.store.Export(ctx, key)
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(export, cmd.String("format"), cmd.String("output"))
	if err != nil {
		return err
	}
	r.logger.Info("exported playlist", "platform", key.Platform, "playlist_id", key.ID, "videos", len(export.Videos))
	return r.writePlain("✓ wrote %s\n", path)
}
