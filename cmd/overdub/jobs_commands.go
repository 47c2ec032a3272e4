package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"overdub/internal/ipc"
)

func newJobsCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage dubbing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listJobs(cmd, cmdCtx, nil)
		},
	}

	var statusFilter []string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listJobs(cmd, cmdCtx, statusFilter)
		},
	}
	listCmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Filter by status (queued, running, done, failed, canceled)")

	showCmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job with its recorded artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobDescribe(args[0])
				if err != nil {
					return err
				}
				job := resp.Job
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job:       %s\n", job.ID)
				fmt.Fprintf(out, "File:      %s\n", job.FileName)
				fmt.Fprintf(out, "Dub:       %s -> %s (%s)\n", job.SourceLanguage, job.TargetLanguage, job.VoiceStyle)
				fmt.Fprintf(out, "Captions:  %s\n", yesNo(job.GenerateCaptions))
				fmt.Fprintf(out, "Status:    %s\n", describeStatus(job.JobSummary))
				if job.CurrentStage != "" {
					fmt.Fprintf(out, "Stage:     %s\n", job.CurrentStage)
				}
				fmt.Fprintf(out, "Created:   %s\n", job.CreatedAt)
				fmt.Fprintf(out, "Updated:   %s\n", job.UpdatedAt)
				if len(job.Artifacts) > 0 {
					rows := make([][]string, 0, len(job.Artifacts))
					for _, artifact := range job.Artifacts {
						rows = append(rows, []string{artifact.Stage, artifact.Ref, artifact.CreatedAt})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable([]string{"Stage", "Ref", "Recorded"}, rows, nil))
				}
				return nil
			})
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobCancel(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s is now %s\n", args[0], resp.Status)
				return nil
			})
		},
	}

	retryCmd := &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Requeue failed jobs; with no arguments, every failed job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobRetry(args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d job(s)\n", resp.Updated)
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, showCmd, cancelCmd, retryCmd)
	return cmd
}

func listJobs(cmd *cobra.Command, cmdCtx *commandContext, statuses []string) error {
	return cmdCtx.withClient(func(client *ipc.Client) error {
		resp, err := client.JobList(statuses)
		if err != nil {
			return err
		}
		if len(resp.Jobs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
			return nil
		}
		rows := make([][]string, 0, len(resp.Jobs))
		for _, job := range resp.Jobs {
			rows = append(rows, []string{
				job.ID,
				job.FileName,
				job.SourceLanguage + " -> " + job.TargetLanguage,
				describeStatus(job),
				job.CurrentStage,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"ID", "File", "Dub", "Status", "Stage"}, rows, nil))
		return nil
	})
}

func describeStatus(job ipc.JobSummary) string {
	if job.ErrorMessage == "" {
		return job.Status
	}
	detail := job.ErrorMessage
	if job.ErrorStage != "" {
		detail = job.ErrorStage + ": " + detail
	}
	return job.Status + " (" + strings.TrimSpace(detail) + ")"
}
