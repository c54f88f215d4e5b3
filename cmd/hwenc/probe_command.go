package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zsiec/hwenc/internal/mpegts"
)

func newProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "probe <file.ts>",
		Short:       "Summarize the video streams in a transport stream",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			sum, err := mpegts.Summarize(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("probe %s: %w", args[0], err)
			}
			return writeJSON(cmd, sum)
		},
	}
}
