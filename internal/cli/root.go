package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/gdcmaf/internal/config"
	"github.com/me/gdcmaf/internal/logging"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the gdc-maf-tool CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gdc-maf-tool",
		Short: "GDC MAF concatenation tool",
		Long: "gdc-maf-tool downloads the aliquot level MAFs of a GDC project, case list or file list,\n" +
			"keeps one primary aliquot per case, and writes them to one gzip compressed MAF.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				loaded.Log.Format = flagLogFormat
			}

			l, err := logging.New(logging.Options{
				Level:  loaded.Log.Level,
				Format: loaded.Log.Format,
				Debug:  flagDebug,
				Writer: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			cfg, logger = loaded, l
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML configuration file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newCollectCmd(),
		newHistoryCmd(),
	)
	return root
}
