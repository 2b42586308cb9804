package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"

	_ "github.com/jvm-metadata/harvester/pkg/vendors/all"
)

const envPrefix = "HARVESTER_"

type globalOptions struct {
	debug bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvest JVM distribution metadata from vendor sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindEnv(cmd.Flags())
		},
	}
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newScrapeCmd(opts))
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newBuildDBCmd(opts))
	return cmd
}

// bindEnv fills every flag not given on the command line from its
// HARVESTER_<NAME> environment variable, e.g. HARVESTER_METADATA_DIR.
func bindEnv(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(name); ok {
			if e := flags.Set(f.Name, v); e != nil {
				err = xerrors.Errorf("invalid %s: %w", name, e)
			}
		}
	})
	return err
}

func newLogger(opts *globalOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}
