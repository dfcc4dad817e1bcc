package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onnwee/matchfeed/internal/matching"
)

func calibrationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibration",
		Short: "Work with vector calibration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Check a calibration file and print the effective blend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blend, err := matching.LoadCalibration(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "classic_weight=%.2f embedding_weight=%.2f similarity_threshold=%.2f\n",
				blend.ClassicWeight, blend.EmbeddingWeight, blend.SimilarityThreshold)
			return nil
		},
	})
	return cmd
}
