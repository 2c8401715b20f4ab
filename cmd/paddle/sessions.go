package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dcrodman/paddle/internal/core"
	"github.com/dcrodman/paddle/internal/sessions"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Run the sessions service that launches and tracks game servers",
	Run:   SessionsCommand,
}

func SessionsCommand(cmd *cobra.Command, args []string) {
	ctx, cfg, logger := setUp()

	db, err := sessions.OpenDatabase(cfg)
	if err != nil {
		exitWithError(logger, err)
	}
	defer func() {
		if err := sessions.CloseDatabase(db); err != nil {
			logger.Warn(err)
		}
	}()

	launcher := &sessions.ProcessLauncher{
		Logger:          logger,
		Command:         launchCommand(cfg),
		RegistryAddress: fmt.Sprintf("127.0.0.1:%d", cfg.Sessions.Port),
		MinPort:         cfg.GameServer.MinPort,
		MaxPort:         cfg.GameServer.MaxPort,
	}
	server := sessions.NewServer(db, launcher,
		sessions.WithLogger(logger),
		sessions.WithExternalIP(cfg.ExternalIP),
		sessions.WithSessionTTL(cfg.Sessions.SessionTTL),
	)

	if err := server.Start(ctx, cfg.SessionsAddress()); err != nil {
		exitWithError(logger, err)
	}
}

// launchCommand defaults to running this same binary as a game server.
func launchCommand(cfg *core.Config) []string {
	if len(cfg.Sessions.LaunchCommand) > 0 {
		return cfg.Sessions.LaunchCommand
	}
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}
	return []string{self, "server", "--config", ConfigFlag}
}
