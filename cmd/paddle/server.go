package main

import (
	"github.com/spf13/cobra"

	"github.com/dcrodman/paddle/internal/gameserver"
	"github.com/dcrodman/paddle/internal/transport"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a dedicated game server",
	Long: "Run a dedicated game server. The port is picked from MIN_PORT-MAX_PORT and the\n" +
		"server registers itself with SESSIONS_SERVICE_HOST as SESSION_NAME when set.",
	Run: ServerCommand,
}

func ServerCommand(cmd *cobra.Command, args []string) {
	ctx, cfg, logger := setUp()

	tcp := &transport.TCPServer{
		HTTP:     transport.NewHTTP(cfg.GameClient.RequestTimeout),
		Hostname: cfg.Hostname,
		Logger:   logger,
	}
	server := gameserver.New(tcp,
		gameserver.WithLogger(logger),
		gameserver.WithDefaultPortRange(cfg.GameServer.MinPort, cfg.GameServer.MaxPort),
	)
	tcp.Handler = server

	if err := server.Start(ctx); err != nil {
		exitWithError(logger, err)
	}
	if err := server.OnReady(func() {
		logger.Info("[GameServer] both players have joined; game ready")
	}); err != nil {
		exitWithError(logger, err)
	}

	<-ctx.Done()
	if err := server.Stop(); err != nil {
		logger.Warnf("[GameServer] error stopping: %v", err)
	}
	logger.Info("[GameServer] shut down")
}
