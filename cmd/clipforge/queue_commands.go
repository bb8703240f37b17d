package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"clipforge/internal/pipeline"
	"clipforge/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage dispatcher jobs",
	}
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueEnqueueCommand(ctx))
	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per queue and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				stats, err := p.Jobs.Stats(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Queue", "Queued", "Running", "Done", "Failed"},
					buildQueueStatsRows(stats, p.Dispatcher.Queues()),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var queueName string
	var statuses []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				jobs, err := p.Jobs.List(runCtx, queue.Filter{
					Queue:    strings.TrimSpace(queueName),
					Statuses: parsed,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Queue", "Payload", "Status", "Attempts", "Enqueued", "Finished", "Result / Error"},
					buildJobRows(jobs),
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "Only list jobs of this queue")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs")
	return cmd
}

func buildJobRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		detail := job.ResultRef
		if job.Status == queue.StatusFailed || (job.ErrorMessage != "" && job.Status == queue.StatusQueued) {
			detail = job.ErrorMessage
			if job.ErrorKind != "" {
				detail = job.ErrorKind + ": " + detail
			}
		}
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			job.Queue,
			strconv.FormatInt(job.PayloadID, 10),
			string(job.Status),
			strconv.Itoa(job.Attempts),
			formatWhen(job.EnqueuedAt),
			formatOptionalWhen(job.FinishedAt),
			truncate(detail, 60),
		})
	}
	return rows
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var allFailed bool
	var queueName string

	cmd := &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Requeue failed jobs with a fresh attempt budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !allFailed && len(args) == 0 {
				return fmt.Errorf("specify job ids or --failed")
			}
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg, "job")
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				if allFailed {
					failed, err := p.Jobs.List(runCtx, queue.Filter{
						Queue:    strings.TrimSpace(queueName),
						Statuses: []queue.Status{queue.StatusFailed},
					})
					if err != nil {
						return err
					}
					for _, job := range failed {
						ids = append(ids, job.ID)
					}
				}
				out := cmd.OutOrStdout()
				retried := 0
				for _, id := range ids {
					job, err := p.Jobs.Retry(runCtx, id)
					if err != nil {
						fmt.Fprintf(out, "Job %d: %v\n", id, err)
						continue
					}
					retried++
					fmt.Fprintf(out, "Job %d requeued on %s\n", job.ID, job.Queue)
				}
				fmt.Fprintf(out, "Retried %d of %d jobs\n", retried, len(ids))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&allFailed, "failed", false, "Retry every failed job")
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "With --failed, only retry jobs of this queue")
	return cmd
}

func newQueueEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <queue> <payload-id>",
		Short: "Queue a job directly, for example to re-run transcription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloadID, err := parseID(args[1], "payload")
			if err != nil {
				return err
			}
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				job, err := p.Dispatcher.Enqueue(runCtx, strings.TrimSpace(args[0]), payloadID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d on %s for payload %d\n", job.ID, job.Queue, job.PayloadID)
				return nil
			})
		},
	}
}
