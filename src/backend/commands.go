package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hannes/doc-cleanser/src/backend/config"
	"github.com/hannes/doc-cleanser/src/backend/pipeline"
	"github.com/hannes/doc-cleanser/src/backend/server"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command for the cleanser CLI
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "cleanser",
		Short:         "Replace personal data in documents with realistic synthetic values",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file (yaml or json)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(newAnonymizeCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

func newAnonymizeCommand(opts *RootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "anonymize [file]",
		Short: "Anonymize one document and print it",
		Long: `Anonymize reads a document from a file, or from stdin when no file is
given, and writes the anonymized text to stdout.

Example:
  cleanser anonymize notes.txt > notes_cleansed.txt
  cat notes.txt | cleanser anonymize --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = file.Close() }()
				input = file
			}
			raw, err := io.ReadAll(input)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			a, err := newApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.anonymizer.AnonymizeWithStats(cmd.Context(), string(raw))
			if err != nil {
				documentID, fileType := documentSource(args)
				a.reporter.ReportDocumentFailure(documentID, fileType, err)
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(result)
			}
			_, err = io.WriteString(out, result.Text)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print text and stats as JSON")

	return cmd
}

// documentSource names the anonymize input for failure reports: the file's
// base name and extension, or stdin.
func documentSource(args []string) (documentID, fileType string) {
	if len(args) == 0 {
		return "stdin", "cli"
	}
	return filepath.Base(args[0]), strings.ToLower(filepath.Ext(args[0]))
}

func newRunCommand(opts *RootOptions) *cobra.Command {
	var inputDir, processedDir, reportsDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Cleanse every document in the input directory",
		Long: `Run processes each supported document in the input directory, writes
<name>_cleansed.txt files to the processed directory, records per-document
counts in the report store and writes <run-id>_summary.json to the reports
directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.close()

			cfg := a.config.Pipeline
			if inputDir != "" {
				cfg.InputDir = inputDir
			}
			if processedDir != "" {
				cfg.ProcessedDir = processedDir
			}
			if reportsDir != "" {
				cfg.ReportsDir = reportsDir
			}

			p := pipeline.New(a.anonymizer, cfg,
				pipeline.WithStore(a.store),
				pipeline.WithReporter(a.reporter),
				pipeline.WithLogger(a.logger),
			)
			summary, err := p.Run(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d processed, %d skipped\n",
				summary.RunID, summary.Processed, summary.Skipped)
			return err
		},
	}

	cmd.Flags().StringVar(&inputDir, "input", "", "input directory (overrides config)")
	cmd.Flags().StringVar(&processedDir, "processed", "", "output directory for cleansed files (overrides config)")
	cmd.Flags().StringVar(&reportsDir, "reports", "", "output directory for run summaries (overrides config)")

	return cmd
}

func newServeCommand(opts *RootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the anonymization HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.close()

			if port != "" {
				a.config.Server.Port = port
			}
			srv := server.NewServer(a.config, a.anonymizer, a.manager, a.reporter, a.logger)

			current := a.config.Detector
			watch := func(cfg *config.Config) {
				srv.SetDetectorConfig(cfg.Detector)
				if reflect.DeepEqual(cfg.Detector, current) {
					return
				}
				a.logger.Info("Detector configuration changed, reloading",
					zap.String("detector", cfg.Detector.Name))
				if err := a.manager.Reload(cfg.Detector.Name, cfg.Detector.DetectorOptions()); err != nil {
					a.logger.Error("Detector reload failed, detector unhealthy until next reload", zap.Error(err))
					return
				}
				current = cfg.Detector
			}
			if a.loader.ConfigFile() != "" {
				a.loader.Watch(watch, func(err error) {
					a.logger.Warn("Ignoring invalid configuration change", zap.Error(err))
				})
			}

			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen address, e.g. :8081 (overrides config)")

	return cmd
}
