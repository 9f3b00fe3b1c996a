// Playroom CLI — загрузка сканов и просмотр результатов через HTTP API.
//
// Использование:
//
//	playroom [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	scan    submit, show
//	limits  дневная квота
//	run     trigger, show (API оркестратора)
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Playroom/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	var apiURL, orchURL, username, password string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "playroom",
		Short:         "Playroom CLI: toy scans and development roadmaps",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&apiURL, "api-url", envOr("PLAYROOM_API_URL", "http://localhost:8080"), "API server URL")
	flags.StringVar(&orchURL, "orch-url", envOr("ORCH_HOST", "http://localhost:8083"), "Orchestrator URL")
	flags.StringVar(&username, "username", envOr("ORCH_USERNAME", "playroom"), "Orchestrator username")
	flags.StringVar(&password, "password", envOr("ORCH_PASSWORD", ""), "Orchestrator password")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	orchFn := func() *cli.OrchClient { return cli.NewOrchClient(orchURL, username, password) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewScanCmd(clientFn, outputFn),
		cli.NewLimitsCmd(clientFn, outputFn),
		cli.NewRunCmd(orchFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		cli.NewOutput(false).Error(err.Error())
		os.Exit(1)
	}
}
