package cli

import (
	"errors"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aptly-reconcile/internal/adapters"
	"aptly-reconcile/internal/core"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "APTLY_RECONCILE"

type RootConfig struct {
	SettingsFile    string
	ConfigFile      string
	LogLevel        string
	Pretend         bool
	AptlyBin        string
	GPGBin          string
	Keyring         string
	Keyserver       string
	MinAptlyVersion string
	GraphPath       string
}

func Execute() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg(errorMessage(err))
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "aptly-reconcile",
		Short:         "Reconcile an aptly backend with a declarative config",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.SettingsFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			cmd.SetContext(log.Logger.WithContext(cmd.Context()))
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.SettingsFile, "settings", "", "Tool settings file path")
	flags.StringVarP(&cfg.ConfigFile, "config", "c", "", "Declarative config defining mirrors, repos, snapshots and publishes")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	flags.BoolVarP(&cfg.Pretend, "pretend", "p", false, "Only print what would be done")
	flags.StringVar(&cfg.AptlyBin, "aptly-bin", "aptly", "aptly executable")
	flags.StringVar(&cfg.GPGBin, "gpg-bin", "gpg", "gpg executable")
	flags.StringVar(&cfg.Keyring, "keyring", "trustedkeys.gpg", "Keyring aptly verifies mirrors against")
	flags.StringVar(&cfg.Keyserver, "keyserver", adapters.DefaultKeyserver, "Keyserver for mirror signing keys")
	flags.StringVar(&cfg.MinAptlyVersion, "min-aptly-version", "1.3.0", "Oldest accepted aptly version (empty disables the check)")
	flags.StringVar(&cfg.GraphPath, "graph", "", "Write the planned command graph as dot to this path")
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("pretend", flags.Lookup("pretend"))
	_ = viper.BindPFlag("aptly_bin", flags.Lookup("aptly-bin"))
	_ = viper.BindPFlag("gpg_bin", flags.Lookup("gpg-bin"))
	_ = viper.BindPFlag("keyring", flags.Lookup("keyring"))
	_ = viper.BindPFlag("keyserver", flags.Lookup("keyserver"))
	_ = viper.BindPFlag("min_aptly_version", flags.Lookup("min-aptly-version"))
	_ = viper.BindPFlag("graph", flags.Lookup("graph"))

	cmd.AddCommand(newMirrorCommand())
	cmd.AddCommand(newRepoCommand())
	cmd.AddCommand(newSnapshotCommand())
	cmd.AddCommand(newPublishCommand())
	cmd.AddCommand(newPruneCommand())
	cmd.AddCommand(newStateCommand())
	cmd.AddCommand(newConvertCommand())
	return cmd
}

func initConfig(settingsFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if settingsFile != "" {
		viper.SetConfigFile(settingsFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read settings file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("aptly-reconcile")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/aptly-reconcile")
	if err := viper.ReadInConfig(); err != nil {
		return nil
	}
	return nil
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func exitCodeForError(err error) int {
	code := errbuilder.CodeOf(err)
	switch code {
	case errbuilder.CodeInvalidArgument, errbuilder.CodeAlreadyExists:
		return 2
	case errbuilder.CodeFailedPrecondition:
		return 4
	case errbuilder.CodePermissionDenied:
		return 3
	case errbuilder.CodeNotFound, errbuilder.CodeInternal:
		return 5
	default:
		if core.IsUnknownDependencyKind(err) {
			return 2
		}
		return 1
	}
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
