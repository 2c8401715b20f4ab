package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/dcrodman/paddle/internal/matchmaker"
	"github.com/dcrodman/paddle/internal/transport"
)

var matchmakerCmd = &cobra.Command{
	Use:   "matchmaker",
	Short: "Run the matchmaker service",
	Run:   MatchmakerCommand,
}

func MatchmakerCommand(cmd *cobra.Command, args []string) {
	ctx, cfg, logger := setUp()

	store, err := matchmaker.NewStore(ctx, cfg)
	if err != nil {
		exitWithError(logger, err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	sessions := matchmaker.NewSessionsClient(logger,
		transport.NewHTTP(cfg.GameClient.RequestTimeout),
		cfg.Matchmaker.SessionsAddress,
	)
	server := matchmaker.NewServer(store, sessions, matchmaker.WithLogger(logger))

	if err := server.Start(ctx, cfg.MatchmakerAddress()); err != nil {
		exitWithError(logger, err)
	}
}
