package main

import (
	"github.com/spf13/cobra"

	"pawtrail/internal/app"
	"pawtrail/internal/config"
)

func calibrationCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "calibration",
		Short: "Print the active calibration table as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := app.LoadCalibration(config.PredictionConfig{CalibrationFile: file})
			if err != nil {
				return err
			}
			out, err := table.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Validate and print this calibration file instead of the embedded one")
	return cmd
}
