package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"clipforge/internal/pipeline"
	"clipforge/internal/subtitles"
)

func newTranscriptCommand(ctx *commandContext) *cobra.Command {
	transcriptCmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect recording transcripts",
	}
	transcriptCmd.AddCommand(newTranscriptShowCommand(ctx))
	return transcriptCmd
}

func newTranscriptShowCommand(ctx *commandContext) *cobra.Command {
	var asSRT bool
	cmd := &cobra.Command{
		Use:   "show <recording-id>",
		Short: "Print the transcript of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordingID, err := parseID(args[0], "recording")
			if err != nil {
				return err
			}
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				tr, err := p.Catalog.TranscriptForRecording(runCtx, recordingID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asSRT {
					fmt.Fprint(out, subtitles.Render(tr.Segments, p.Config.Subtitles.OffsetSeconds))
					return nil
				}
				if len(tr.Segments) == 0 {
					fmt.Fprintln(out, "Transcript is empty")
					return nil
				}
				for _, seg := range tr.Segments {
					fmt.Fprintf(out, "[%s - %s] %s\n", formatClock(seg.Start), formatClock(seg.End), seg.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asSRT, "srt", false, "Render as SRT with the configured caption offset")
	return cmd
}
