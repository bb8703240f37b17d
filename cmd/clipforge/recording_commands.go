package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipforge/internal/ingest"
	"clipforge/internal/pipeline"
	"clipforge/internal/services"
)

func newRecordingCommand(ctx *commandContext) *cobra.Command {
	recordingCmd := &cobra.Command{
		Use:     "recording",
		Aliases: []string{"rec"},
		Short:   "Register and inspect recordings",
	}
	recordingCmd.AddCommand(newRecordingAddCommand(ctx))
	recordingCmd.AddCommand(newRecordingListCommand(ctx))
	recordingCmd.AddCommand(newRecordingShowCommand(ctx))
	return recordingCmd
}

func newRecordingAddCommand(ctx *commandContext) *cobra.Command {
	var title, game, contentType string
	cmd := &cobra.Command{
		Use:   "add <video>",
		Short: "Store a video and queue it for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				rec, job, err := p.Ingest.Add(runCtx, ingest.AddRequest{
					Path:        args[0],
					Title:       title,
					GameName:    game,
					ContentType: contentType,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Added recording %d (%s, %s)\n", rec.ID, rec.Title, formatBytes(rec.Video.Size))
				if job != nil {
					fmt.Fprintf(out, "Queued ingest job %d\n", job.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Recording title (defaults to the file name)")
	cmd.Flags().StringVarP(&game, "game", "g", "", "Game name")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type of the video (default video/mp4)")
	return cmd
}

func newRecordingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				recs, err := p.Catalog.ListRecordings(runCtx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(recs) == 0 {
					fmt.Fprintln(out, "No recordings")
					return nil
				}
				rows := make([][]string, 0, len(recs))
				for _, rec := range recs {
					rows = append(rows, []string{
						strconv.FormatInt(rec.ID, 10),
						truncate(rec.Title, 40),
						rec.GameName,
						formatDuration(rec.DurationSeconds),
						formatBytes(rec.Video.Size),
						rec.Video.Filename,
						formatWhen(rec.UpdatedAt),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Title", "Game", "Duration", "Size", "File", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newRecordingShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a recording with its transcript and clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "recording")
			if err != nil {
				return err
			}
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				rec, err := p.Catalog.GetRecording(runCtx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Recording %d\n", rec.ID)
				fmt.Fprintf(out, "  Title:     %s\n", rec.Title)
				if rec.GameName != "" {
					fmt.Fprintf(out, "  Game:      %s\n", rec.GameName)
				}
				fmt.Fprintf(out, "  Duration:  %s\n", formatDuration(rec.DurationSeconds))
				fmt.Fprintf(out, "  Video:     %s (%s, version %d)\n", rec.Video.Filename, formatBytes(rec.Video.Size), rec.VideoVersion)
				fmt.Fprintf(out, "  Path:      %s\n", p.Blobs.Path(rec.Video.Key))
				fmt.Fprintf(out, "  Added:     %s\n", formatWhen(rec.CreatedAt))

				tr, err := p.Catalog.TranscriptForRecording(runCtx, rec.ID)
				switch {
				case errors.Is(err, services.ErrNotFound):
					fmt.Fprintln(out, "  Transcript: none")
				case err != nil:
					return err
				default:
					fmt.Fprintf(out, "  Transcript: %d segments (%s)\n", len(tr.Segments), tr.Schema)
				}

				clipList, err := p.Catalog.ListClips(runCtx, rec.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  Clips:     %d\n", len(clipList))
				return nil
			})
		},
	}
}
