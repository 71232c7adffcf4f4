package main

import (
	"fmt"

	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Drive job batches by hand",
}

var (
	runBatchSize int
	runParallel  int
	runAll       bool
)

var runBatchCmd = &cobra.Command{
	Use:   "run-batch [id]",
	Short: "Process the next batch of a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}

		a, _, _, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		for {
			resp, err := a.Runner.RunBatch(cmd.Context(), id, runBatchSize, runParallel)
			if err != nil {
				return err
			}
			if !runAll {
				return printJSON(cmd, resp)
			}

			printProgress(cmd, resp)
			if !resp.ShouldContinue || resp.Busy || cmd.Context().Err() != nil {
				return nil
			}
		}
	},
}

func init() {
	runBatchCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "Items per batch (0 uses WORKER_BATCH_SIZE)")
	runBatchCmd.Flags().IntVar(&runParallel, "parallel", 0, "Items processed concurrently (0 uses WORKER_PARALLEL_COUNT)")
	runBatchCmd.Flags().BoolVar(&runAll, "all", false, "Keep running batches until the job stops")

	workerCmd.AddCommand(runBatchCmd)
}

func printProgress(cmd *cobra.Command, resp *dto.BatchResponseDTO) {
	out := cmd.OutOrStdout()
	if resp.Message != "" {
		fmt.Fprintln(out, resp.Message)
	}
	if resp.Job == nil {
		return
	}
	fmt.Fprintf(out, "job %d %s: %d/%d processed, %d ok, %d errors (batch: %d ok, %d errors)\n",
		resp.Job.ID, resp.Job.Status, resp.Job.ProcessedItems, resp.Job.TotalItems,
		resp.Job.SuccessCount, resp.Job.ErrorCount,
		resp.BatchResult.Processed, resp.BatchResult.Errors)
}
