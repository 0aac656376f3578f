package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"requestbin-hq/sieve/pkg/bin"
	"requestbin-hq/sieve/pkg/cli"
)

var statsFlags struct {
	output string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show bin statistics",
	Long: `Print the number of total, active and expired bins and the number of
captured requests in the configured store.

Examples:
  sieve stats
  sieve stats --output json`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&statsFlags.output, "output", "o", "text", "output format: text, json")
}

type statsReport struct {
	*bin.Stats
	Storage string `json:"storage"`
}

func (r statsReport) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, `Storage:  %s
Bins:     %d (%d active, %d expired)
Requests: %d
`, r.Storage, r.Total, r.Active, r.Expired, r.Requests)
	return err
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(statsFlags.output)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(&cfg.Telemetry.Logging)
	if err != nil {
		return err
	}
	defer logger.Shutdown()
	logger.SetDefault()

	a, err := newApp(cfg)
	if err != nil {
		return cli.NewCommandError("stats", err)
	}
	defer a.Close()

	stats, err := a.newSweeper().Stats(cmd.Context())
	if err != nil {
		return cli.NewCommandError("stats", err)
	}
	return cli.Print(cmd.OutOrStdout(), format, statsReport{Stats: stats, Storage: cfg.Storage.Backend})
}
