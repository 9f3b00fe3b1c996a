package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewScanCmd создаёт группу команд для сканов.
func NewScanCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Submit and inspect toy scans",
	}

	cmd.AddCommand(
		newScanSubmitCmd(clientFn, outputFn),
		newScanShowCmd(clientFn, outputFn),
	)
	return cmd
}

func newScanSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var age int
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Upload a photo of toys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.SubmitScan(args[0], age)
			if err != nil {
				return err
			}

			if !wait {
				out.Print(
					[]string{"ID", "STATUS", "CACHED", "RUN_ID"},
					[][]string{{res.ID, Status(res.Status), strconv.FormatBool(res.Cached), res.RunID}},
					res,
				)
				return nil
			}

			out.Success(fmt.Sprintf("Scan %s accepted, waiting for result...", res.ID))
			scan, err := client.WaitScan(res.ID, 3*time.Second, timeout)
			if err != nil {
				return err
			}
			printScan(out, scan)
			return nil
		},
	}

	cmd.Flags().IntVar(&age, "age", 0, "Child age in years (0-18)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the scan is processed")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait with --wait")
	cmd.MarkFlagRequired("age")

	return cmd
}

func newScanShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show scan status and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scan, err := clientFn().GetScan(args[0])
			if err != nil {
				return err
			}
			printScan(outputFn(), scan)
			return nil
		},
	}
}

func printScan(out *Output, scan *ScanResponse) {
	if out.jsonMode {
		out.JSON(scan)
		return
	}

	pairs := [][2]string{
		{"ID", scan.ID},
		{"Status", Status(scan.Status)},
		{"Image", scan.ImageURL},
	}
	if scan.Error != "" {
		pairs = append(pairs, [2]string{"Error", scan.Error})
	}
	if scan.Result == nil {
		out.KeyValue(pairs)
		return
	}

	res := scan.Result
	pairs = append(pairs, [2]string{"Summary", res.StatusSummary})
	out.KeyValue(pairs)

	skills := make([]string, 0, len(res.SkillScores))
	for name := range res.SkillScores {
		skills = append(skills, name)
	}
	sort.Strings(skills)
	rows := make([][]string, len(skills))
	for i, name := range skills {
		rows[i] = []string{name, strconv.Itoa(res.SkillScores[name])}
	}
	out.Table([]string{"SKILL", "SCORE"}, rows, 2)

	rows = make([][]string, len(res.MergedRoadmap))
	for i, item := range res.MergedRoadmap {
		rows[i] = []string{item.Timeframe, item.Title, Status(item.Decision), item.FinalRecommendation}
	}
	out.Table([]string{"WHEN", "TITLE", "SAFETY", "RECOMMENDATION"}, rows)

	if res.Quest.Title != "" {
		out.KeyValue([][2]string{
			{"Quest", res.Quest.Title},
			{"Uses", strings.Join(res.Quest.Items, ", ")},
		})
	}
}
