package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipforge/internal/clips"
	"clipforge/internal/pipeline"
)

func newClipCommand(ctx *commandContext) *cobra.Command {
	clipCmd := &cobra.Command{
		Use:   "clip",
		Short: "Request and list clips",
	}
	clipCmd.AddCommand(newClipCreateCommand(ctx))
	clipCmd.AddCommand(newClipListCommand(ctx))
	return clipCmd
}

func newClipCreateCommand(ctx *commandContext) *cobra.Command {
	var start, end, title string
	var replace int64
	cmd := &cobra.Command{
		Use:   "create <recording-id>",
		Short: "Request a clip of a recording",
		Long: "Request a clip of a recording. Times accept HH:MM:SS[.fff], MM:SS[.fff] or seconds.\n" +
			"The request is validated immediately; extraction runs in the daemon.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordingID, err := parseID(args[0], "recording")
			if err != nil {
				return err
			}
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				outcome := p.Clips.Request(runCtx, clips.Request{
					RecordingID: recordingID,
					ClipID:      replace,
					Title:       title,
					Start:       start,
					End:         end,
				})
				if !outcome.OK {
					return fmt.Errorf("clip rejected: %s", outcome.Message())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued clip request %d\n", outcome.Ref.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Clip start time")
	cmd.Flags().StringVar(&end, "end", "", "Clip end time")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Clip title")
	cmd.Flags().Int64Var(&replace, "replace", 0, "Existing clip id whose video is replaced")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newClipListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <recording-id>",
		Short: "List finished clips of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordingID, err := parseID(args[0], "recording")
			if err != nil {
				return err
			}
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				if _, err := p.Catalog.GetRecording(runCtx, recordingID); err != nil {
					return err
				}
				clipList, err := p.Catalog.ListClips(runCtx, recordingID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(clipList) == 0 {
					fmt.Fprintln(out, "No clips")
					return nil
				}
				rows := make([][]string, 0, len(clipList))
				for _, c := range clipList {
					rows = append(rows, []string{
						strconv.FormatInt(c.ID, 10),
						truncate(c.Title, 40),
						formatClock(c.StartTime),
						formatClock(c.EndTime),
						formatBytes(c.Video.Size),
						p.Blobs.Path(c.Video.Key),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Title", "Start", "End", "Size", "Path"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}
