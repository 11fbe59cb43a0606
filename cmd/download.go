package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tubeq/internal/shared"
	"github.com/desertthunder/tubeq/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Download submits a single video. With the memory queue backend the download runs in
// this process and the command returns once the requester has been notified.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	url := cmd.StringArg("url")
	if url == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}
	req := tasks.Requester{ID: cmd.String("requester"), Ref: cmd.String("ref")}

	p, err := r.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	var sub *tasks.Submission
	err = p.runInline(ctx, func(ctx context.Context) error {
		var serr error
		sub, serr = p.router.SubmitDownload(ctx, url, req)
		return serr
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"platform": sub.Video.Platform,
			"video_id": sub.Video.ID,
			"url":      sub.URL,
			"cached":   sub.Cached,
		}, false)
	}

	state := "queued"
	switch {
	case sub.Cached:
		state = "cached"
	case p.inProcess():
		state = "processed"
	}
	return r.writePlain("%s %s (%s)\n", state, sub.Video, sub.URL)
}
