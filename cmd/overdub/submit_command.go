package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"overdub/internal/ipc"
	"overdub/internal/language"
)

func newSubmitCommand(cmdCtx *commandContext) *cobra.Command {
	var sourceLang string
	var targetLang string
	var voiceStyle string
	var captions bool

	cmd := &cobra.Command{
		Use:   "submit <video-file>",
		Short: "Queue a dubbing job for a local video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetLang == "" {
				return errors.New("--to is required")
			}
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(ipc.SubmitRequest{
					Path:             args[0],
					SourceLanguage:   sourceLang,
					TargetLanguage:   targetLang,
					VoiceStyle:       voiceStyle,
					GenerateCaptions: captions,
				})
				if err != nil {
					return err
				}
				job := resp.Job
				fmt.Fprintf(cmd.OutOrStdout(), "queued job %s: %s %s -> %s (%s, captions: %s)\n",
					job.ID, job.FileName,
					language.DisplayName(job.SourceLanguage), language.DisplayName(job.TargetLanguage),
					job.VoiceStyle, yesNo(job.GenerateCaptions))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceLang, "from", "en", "Source language code")
	cmd.Flags().StringVar(&targetLang, "to", "", "Target language code")
	cmd.Flags().StringVar(&voiceStyle, "style", "natural", "Voice style (natural, professional, casual, news)")
	cmd.Flags().BoolVar(&captions, "captions", false, "Generate aligned captions")
	return cmd
}
