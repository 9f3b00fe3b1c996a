package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для pipeline runs оркестратора.
func NewRunCmd(clientFn func() *OrchClient, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger and inspect pipeline runs",
	}

	cmd.AddCommand(
		newRunTriggerCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
	)
	return cmd
}

func newRunTriggerCmd(clientFn func() *OrchClient, outputFn func() *Output) *cobra.Command {
	var pipeline string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a pipeline run over all pending scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := clientFn().TriggerRun(pipeline)
			if err != nil {
				return err
			}
			out := outputFn()
			if out.jsonMode {
				out.JSON(map[string]string{"run_id": runID})
				return nil
			}
			out.Success(fmt.Sprintf("Run %s triggered", runID))
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "process_scans", "Pipeline name")
	return cmd
}

func newRunShowCmd(clientFn func() *OrchClient, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run status and stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().GetRun(args[0])
			if err != nil {
				return err
			}
			outputFn().Print(
				[]string{"ID", "PIPELINE", "STATUS", "ITEMS", "DONE", "FAILED", "ERROR"},
				[][]string{{
					run.ID, run.Pipeline, Status(run.Status),
					strconv.Itoa(run.Stats.Items),
					strconv.Itoa(run.Stats.Done),
					strconv.Itoa(run.Stats.Failed),
					run.Error,
				}},
				run,
			)
			return nil
		},
	}
}
