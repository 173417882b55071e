package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appcfg "github.com/clmates/wesnoth-tournament-manager-sub003/internal/config"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/obslog"
)

// errRejected marks a run where at least one replay or login was refused.
var errRejected = errors.New("rejected")

type options struct {
	jsonOut bool
	verbose bool
	cfg     *appcfg.AppConfig
}

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	defer obslog.Sync()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if errors.Is(err, errRejected) {
			os.Exit(1)
		}
		obslog.L().Error("replaycheck failed", zap.Error(err))
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "replaycheck",
		Short:         "Validate Wesnoth replays and multiplayer logins",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appcfg.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "include digests, error codes and server attributes")

	root.AddCommand(newParseCmd(opts), newLoginCmd(opts))
	return root
}
