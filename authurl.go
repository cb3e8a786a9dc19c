package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/inkhaven/inkhaven/internal/config"
	"github.com/inkhaven/inkhaven/internal/credential"
)

func newAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authurl",
		Short: "Print the drive authorization URL for operator sign-in",
		Long: "Prints the provider authorization URL built from the configured\n" +
			"client registration. Useful for completing the OAuth flow out of\n" +
			"band and submitting the resulting tokens via the storage token\n" +
			"endpoint of a running server.",
		RunE: runAuthURL,
	}
}

func runAuthURL(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrDefault(resolveConfigPath())
	if err != nil {
		return err
	}

	levelVar := &slog.LevelVar{}
	logger := buildLogger(cfg, levelVar)

	manager := credential.NewManager(credential.NewStore(), oauthConfig(&cfg.Drive), nil, logger)

	url, err := manager.BeginAuthorization()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), url)

	return nil
}
