package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iaswatch/iaswatch/cmd/analyze"
	"github.com/iaswatch/iaswatch/cmd/anomalies"
	"github.com/iaswatch/iaswatch/cmd/sweep"
	"github.com/iaswatch/iaswatch/internal/conf"
	"github.com/iaswatch/iaswatch/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "iaswatch",
		Short: "Invasive alien species activity monitoring CLI",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		analyze.Command(settings),
		anomalies.Command(settings),
		sweep.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	var closeFileLog func() error
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		level := slog.LevelInfo
		if settings.Runtime.Debug {
			level = slog.LevelDebug
		}
		logging.Init(level)

		if settings.Runtime.LogFile != "" {
			fileLog, closer, err := logging.NewFileLogger(settings.Runtime.LogFile, "iaswatch", level)
			if err != nil {
				return err
			}
			slog.SetDefault(fileLog)
			closeFileLog = closer
		}
		return settings.Validate()
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if closeFileLog != nil {
			return closeFileLog()
		}
		return nil
	}

	return rootCmd
}

// setupFlags configures the global flags for the root command.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Runtime.Debug, "debug", "d", settings.Runtime.Debug, "Enable debug output")
	rootCmd.PersistentFlags().IntVar(&settings.Runtime.Workers, "workers", settings.Runtime.Workers, "Worker pool size, 0 means number of CPUs")
	rootCmd.PersistentFlags().StringVarP(&settings.Output.Directory, "output", "o", settings.Output.Directory, "Directory for CSV result tables")
	rootCmd.PersistentFlags().StringVar(&settings.Input.MonthlyFile, "monthly", settings.Input.MonthlyFile, "Monthly activity table")
	rootCmd.PersistentFlags().StringVar(&settings.Input.IntroductionsFile, "introductions", settings.Input.IntroductionsFile, "Invasion-year reference table")
}
