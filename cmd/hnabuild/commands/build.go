package commands

import (
	"fmt"
	"log/slog"
	"time"

	"hnabuild/internal/build"
	"hnabuild/lib/configutil"
	"hnabuild/lib/serviceutil"
	"hnabuild/lib/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type Config struct {
	Build     build.Config     `json:"build"`
	Telemetry telemetry.Config `json:"telemetry"`
}

var configPath *string

func init() {
	configPath = buildCmd.Flags().String("config", "config.json5", "Path to the run configuration file.")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build [--config <path/to/config.json5>]",
	Short: "Runs one acquisition pass and writes per-county extracts.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := Config{Build: build.DefaultConfig()}
		err := configutil.ReadConfig(*configPath, &cfg)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		ctx := cmd.Context()
		tel, err := telemetry.Setup(ctx, "hnabuild", cfg.Telemetry)
		if err != nil {
			serviceutil.Fatal("failed to initialize telemetry", err)
		}
		defer tel.Shutdown(ctx)

		t1 := time.Now()
		outcome, err := build.NewRunner(cfg.Build).Run(ctx)

		fmt.Println(renderSummary(outcome))
		if err != nil {
			serviceutil.Fatal("build aborted", err)
		}
		slog.Info("build time", "seconds", time.Since(t1).Seconds())
	},
}

func renderSummary(outcome build.Outcome) string {
	w := table.NewWriter()
	w.AppendHeader(table.Row{"source", "criticality", "status", "detail"})
	for _, s := range outcome.Sources {
		criticality := "best-effort"
		if s.Critical {
			criticality = "critical"
		}
		status := "ok"
		if !s.OK {
			status = "unavailable"
		}
		w.AppendRow(table.Row{s.Name, criticality, status, s.Detail})
	}
	w.AppendFooter(table.Row{"artifacts", len(outcome.Artifacts), "", ""})
	return w.Render()
}
