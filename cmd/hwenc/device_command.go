package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/zsiec/hwenc/internal/device"
)

type deviceReport struct {
	device.Profile
	PixelPolicy string `json:"pixel_policy"`
	PixelFormat string `json:"pixel_format"`
}

func newDeviceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show the probed device profile and the input layout it selects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := newLogger(io.Discard, cfg.Logging)
			profile := cfg.ApplyDevice(device.Probe(cmd.Context(), log))

			policy := profile.PixelPolicy()
			if forced, err := cfg.Policy(); err != nil {
				return err
			} else if forced != nil {
				policy = *forced
			}
			return writeJSON(cmd, deviceReport{
				Profile:     profile,
				PixelPolicy: policy.String(),
				PixelFormat: policy.PixelFormat().String(),
			})
		},
	}
}
