package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/config"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/pipeline"
)

func newRootCommand(logger *slog.Logger) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           name,
		Short:         "Rebuild the RCM warehouse with a historized patient dimension",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config",
		config.GetEnvStr(config.ConfigPathEnvVar, config.DefaultConfigPath), "pipeline configuration file")

	root.AddCommand(
		newRunCommand(logger, &configPath),
		newValidateConfigCommand(logger, &configPath),
		newVersionCommand(),
	)

	return root
}

func newRunCommand(logger *slog.Logger, configPath *string) *cobra.Command {
	var reportPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one warehouse batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadPipelineConfig(*configPath)
			if err != nil {
				return err
			}

			logger.Info("Starting warehouse batch",
				slog.String("service", name),
				slog.String("version", version),
				slog.String("input_dir", cfg.Source.InputDir),
				slog.String("snapshot", cfg.Source.Snapshot),
				slog.Any("sinks", cfg.Sink.Kinds),
				slog.Bool("strict_integrity", cfg.StrictIntegrity))

			deps, err := wire(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := deps.Close(); err != nil {
					logger.Warn("Failed to release resources", slog.String("error", err.Error()))
				}
			}()

			runner, err := pipeline.NewRunner(cfg, deps.snapshot, deps.source, deps.options(cfg, logger)...)
			if err != nil {
				return err
			}

			report, runErr := runner.Run(cmd.Context())

			if reportPath != "" {
				if err := writeReport(reportPath, report); err != nil {
					return errors.Join(runErr, err)
				}
			}

			return runErr
		},
	}

	cmd.Flags().StringVar(&reportPath, "report", "", "write the run report as JSON to this file")

	return cmd
}

func newValidateConfigCommand(logger *slog.Logger, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the pipeline configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadPipelineConfig(*configPath)
			if err != nil {
				return err
			}

			logger.Info("Configuration is valid",
				slog.String("path", *configPath),
				slog.Any("tracked_attributes", cfg.PatientDimension.TrackedAttributes),
				slog.Any("date_columns", cfg.DateColumns),
				slog.String("dimension_key_order", cfg.DimensionKeyOrder))

			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s v%s (commit %s)\n", name, version, gitCommit)

			return err
		},
	}
}

func writeReport(path string, report *pipeline.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write run report %s: %w", path, err)
	}

	return nil
}
