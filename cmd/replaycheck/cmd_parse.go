package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/adapter/replaypresenter"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/ingest"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/obslog"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/replaybuilder"
	"github.com/clmates/wesnoth-tournament-manager-sub003/pkg/replaydto"
)

func newParseCmd(opts *options) *cobra.Command {
	var minTurns int
	cmd := &cobra.Command{
		Use:   "parse <file|url>...",
		Short: "Parse and validate replay files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("min-turns") {
				opts.cfg.ReplayMinTurns = minTurns
			}
			return runParse(cmd, opts, args)
		},
	}
	cmd.Flags().IntVar(&minTurns, "min-turns", 0, "override REPLAY_MIN_TURNS")
	return cmd
}

func runParse(cmd *cobra.Command, opts *options, args []string) error {
	ctx := cmd.Context()
	deps, err := replaybuilder.New(ctx, opts.cfg, obslog.L())
	if err != nil {
		return err
	}
	defer deps.Close()

	srcs := make([]ingest.Source, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			srcs = append(srcs, ingest.FromURL(a))
		} else {
			srcs = append(srcs, ingest.FromFile(a))
		}
	}

	outcomes := deps.Service.IngestBatch(ctx, srcs)
	resp := make([]replaydto.IngestResponse, 0, len(outcomes))
	rejected := false
	for _, o := range outcomes {
		r := replaydto.IngestResponse{Source: o.Source.Ref}
		if o.Err != nil {
			rejected = true
			r.Error = replaypresenter.ToDomainError(deps.Catalog, o.Err)
		} else {
			r.Match = replaypresenter.ToDTOMatch(o.Record)
		}
		resp = append(resp, r)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else {
		f := &replaypresenter.Formatter{Verbose: opts.verbose}
		for i, r := range resp {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "== %s\n", r.Source)
			if r.Error != nil {
				fmt.Fprintf(out, "REJECTED: %s\n", f.Error(r.Error))
				continue
			}
			fmt.Fprintln(out, f.Match(r.Match))
		}
	}
	if rejected {
		return errRejected
	}
	return nil
}
