package queuectl

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/credential"
)

// ErrUnhealthy is returned by health when the queue is critical so the
// exit code can drive alerting.
var ErrUnhealthy = errors.New("webhook queue is critical")

type statsView struct {
	Stats      observability.QueueSnapshot `json:"stats"`
	Backlog    int64                       `json:"backlog"`
	FailedRate float64                     `json:"failed_rate"`
	Paused     bool                        `json:"paused"`
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEnv(cmd.Context(), func(env *Env) error {
				snap, err := env.Queue.GetStats(cmd.Context())
				if err != nil {
					return err
				}
				view := statsView{
					Stats:      snap,
					Backlog:    snap.Backlog(),
					FailedRate: snap.FailedRate(),
					Paused:     env.Queue.IsPaused(cmd.Context()),
				}
				out := cmd.OutOrStdout()
				if c.settings.JSON {
					return c.printJSON(out, view)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "waiting\t%d\n", snap.Waiting)
				fmt.Fprintf(tw, "active\t%d\n", snap.Active)
				fmt.Fprintf(tw, "delayed\t%d\n", snap.Delayed)
				fmt.Fprintf(tw, "completed\t%d\n", snap.Completed)
				fmt.Fprintf(tw, "failed\t%d\n", snap.Failed)
				fmt.Fprintf(tw, "backlog\t%d\n", view.Backlog)
				fmt.Fprintf(tw, "failed_rate\t%.3f\n", view.FailedRate)
				fmt.Fprintf(tw, "paused\t%t\n", view.Paused)
				return tw.Flush()
			})
		},
	}
}

func (c *cli) failedCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List dead-lettered jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if offset < 0 {
				return fmt.Errorf("--offset must be >= 0")
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be >= 1")
			}
			return c.withEnv(cmd.Context(), func(env *Env) error {
				jobs, err := env.Queue.GetFailedJobs(cmd.Context(), offset, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.settings.JSON {
					return c.printJSON(out, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(out, "no failed jobs")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPAYMENT\tATTEMPTS\tFINISHED\tLAST ERROR")
				for _, j := range jobs {
					finished := "-"
					if j.FinishedAt != nil {
						finished = j.FinishedAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n", j.ID, j.DedupKey, j.Attempts, j.MaxAttempts, finished, j.LastError)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "Rows to return")
	return cmd
}

func (c *cli) retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Move a failed job back to waiting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			return c.withEnv(cmd.Context(), func(env *Env) error {
				job, err := env.Queue.Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				if c.settings.JSON {
					return c.printJSON(cmd.OutOrStdout(), job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s requeued (status %s)\n", job.ID, job.Status)
				return nil
			})
		},
	}
}

func (c *cli) pauseCmd(pause bool) *cobra.Command {
	use, short := "pause", "Stop workers from claiming new jobs"
	if !pause {
		use, short = "resume", "Let workers claim jobs again"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEnv(cmd.Context(), func(env *Env) error {
				if !env.Shared {
					return fmt.Errorf("%s needs --redis-addr to reach running workers", use)
				}
				var err error
				if pause {
					err = env.Queue.Pause(cmd.Context())
				} else {
					err = env.Queue.Resume(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "webhook queue paused=%t\n", pause)
				return nil
			})
		},
	}
}

func (c *cli) cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Prune finished jobs beyond the retention counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEnv(cmd.Context(), func(env *Env) error {
				res, err := env.Queue.Cleanup(cmd.Context())
				if err != nil {
					return err
				}
				if c.settings.JSON {
					return c.printJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed completed=%d failed=%d\n", res.Completed, res.Failed)
				return nil
			})
		},
	}
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Classify queue health; exits non-zero when critical",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEnv(cmd.Context(), func(env *Env) error {
				report, err := env.Health.Evaluate(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.settings.JSON {
					if err := c.printJSON(out, report); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "status=%s backlog=%d failed_rate=%.3f\n", report.Status, report.Backlog, report.FailedRate)
					for _, r := range report.Reasons {
						fmt.Fprintf(out, "  - %s\n", r)
					}
				}
				if report.Status == observability.HealthCritical {
					return ErrUnhealthy
				}
				return nil
			})
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token for the queue endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := credential.SignAdminToken(c.settings.AdminSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "queuectl", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
