package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/adapter/replaypresenter"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/mpclient"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/msgcat"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/obslog"
)

func newLoginCmd(opts *options) *cobra.Command {
	var (
		user        string
		passwordEnv string
		host        string
		port        int
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check a Wesnoth account against the multiplayer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(user) == "" {
				return fmt.Errorf("--user is required")
			}
			req := opts.cfg.LoginRequest(user, os.Getenv(passwordEnv))
			if host != "" {
				req.Host = host
			}
			if port > 0 {
				req.Port = port
			}
			req.Logger = obslog.Named("mpclient")
			return runLogin(cmd, opts, req)
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "account name")
	cmd.Flags().StringVar(&passwordEnv, "password-env", "WESNOTH_PASSWORD", "environment variable holding the password")
	cmd.Flags().StringVar(&host, "host", "", "override WESNOTH_HOST")
	cmd.Flags().IntVar(&port, "port", 0, "override WESNOTH_PORT")
	return cmd
}

func runLogin(cmd *cobra.Command, opts *options, req mpclient.Request) error {
	cat, err := msgcat.New(opts.cfg.MessagesDir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	res, err := mpclient.Login(cmd.Context(), req)
	if err != nil {
		obslog.L().Warn("login failed", zap.String("user", req.Username), zap.Error(err))
		de := replaypresenter.ToDomainError(cat, err)
		if opts.jsonOut {
			return writeJSON(cmd, de, err)
		}
		fmt.Fprintf(out, "ERROR: %s\n", (&replaypresenter.Formatter{Verbose: opts.verbose}).Error(de))
		return err
	}

	dto := replaypresenter.ToDTOLogin(res)
	if opts.jsonOut {
		if err := writeJSON(cmd, dto, nil); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, (&replaypresenter.Formatter{Verbose: opts.verbose}).Login(dto))
		if !res.Authenticated() {
			fmt.Fprintln(out, cat.DescribeLogin(res))
		}
	}
	if !res.Authenticated() {
		return errRejected
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any, passthrough error) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return passthrough
}
