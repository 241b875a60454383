package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Tutortoise/drowsiness-service/logging"
	"github.com/Tutortoise/drowsiness-service/models"
	"github.com/Tutortoise/drowsiness-service/predictor"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// batchLine is one output record of the predict command.
type batchLine struct {
	File string `json:"file"`
	models.Result
}

var predictCmd = &cobra.Command{
	Use:   "predict FILE...",
	Short: "Classify image files in order, as frames of one stream",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.L()
		ctx := cmd.Context()

		a, err := bootstrap(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		bar := progressbar.NewOptions(len(args),
			progressbar.OptionSetDescription("Predicting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		degraded := 0
		for _, path := range args {
			if err := ctx.Err(); err != nil {
				return err
			}

			var result models.Result
			data, err := os.ReadFile(path)
			if err != nil {
				result = predictor.Degraded(err)
			} else {
				timings := &models.ProcessingTimings{RequestID: path}
				result, _ = a.detector.PredictTimed(ctx, models.Encoded{Data: base64.StdEncoding.EncodeToString(data)}, timings)
				logTimings(log, timings)
			}
			if result.Degraded() {
				degraded++
			}

			if err := enc.Encode(batchLine{File: path, Result: result}); err != nil {
				return err
			}
			bar.Add(1)
		}
		bar.Finish()

		if degraded > 0 {
			fmt.Fprintf(os.Stderr, "%d of %d frames could not be classified\n", degraded, len(args))
		}
		return nil
	},
}
