package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"overdub/internal/ipc"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Running:   %s\n", yesNo(resp.Running))
				fmt.Fprintf(out, "PID:       %d\n", resp.PID)
				fmt.Fprintf(out, "Workers:   %d\n", resp.Workers)
				fmt.Fprintf(out, "Database:  %s\n", resp.JobDBPath)
				fmt.Fprintf(out, "Lock:      %s\n", resp.LockPath)
				if resp.LastError != "" {
					fmt.Fprintf(out, "Last err:  %s\n", resp.LastError)
				}

				if len(resp.QueueStats) > 0 {
					statuses := make([]string, 0, len(resp.QueueStats))
					for status := range resp.QueueStats {
						statuses = append(statuses, status)
					}
					sort.Strings(statuses)
					rows := make([][]string, 0, len(statuses))
					for _, status := range statuses {
						rows = append(rows, []string{status, strconv.Itoa(resp.QueueStats[status])})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable([]string{"Status", "Jobs"}, rows,
						[]columnAlignment{alignLeft, alignRight}))
				}

				if len(resp.StageHealth) > 0 {
					rows := make([][]string, 0, len(resp.StageHealth))
					for _, stage := range resp.StageHealth {
						detail := stage.Detail
						if detail == "" && stage.Ready {
							detail = "ready"
						}
						rows = append(rows, []string{stage.Name, yesNo(stage.Ready), detail})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable([]string{"Stage", "Ready", "Detail"}, rows, nil))
				}
				return nil
			})
		},
	}
}
