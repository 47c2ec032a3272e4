package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overdub/internal/ipc"
)

func newTestNotifyCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				if resp.Sent {
					fmt.Fprintln(cmd.OutOrStdout(), "test notification sent")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "notification not sent: %s\n", resp.Message)
				}
				return nil
			})
		},
	}
}
