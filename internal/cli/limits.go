package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewLimitsCmd показывает дневную квоту.
func NewLimitsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show today's scan quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, err := clientFn().Limits()
			if err != nil {
				return err
			}
			outputFn().Print(
				[]string{"DAILY_LIMIT", "USED_TODAY", "REMAINING"},
				[][]string{{
					strconv.Itoa(limits.DailyLimit),
					strconv.Itoa(limits.UsedToday),
					strconv.Itoa(limits.Remaining),
				}},
				limits,
			)
			return nil
		},
	}
}
