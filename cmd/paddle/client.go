package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dcrodman/paddle/internal/gameclient"
	"github.com/dcrodman/paddle/internal/transport"
)

var clientCmd = &cobra.Command{
	Use:   "client [-host host] [-port port] [-match matchmaker]",
	Short: "Connect a game client to a game server",
	// The game client reads its own arguments, which don't follow the usual
	// flag conventions.
	DisableFlagParsing: true,
	Run:                ClientCommand,
}

func ClientCommand(cmd *cobra.Command, args []string) {
	args = extractConfigFlag(args)
	ctx, cfg, logger := setUp()

	tcp := &transport.TCPClient{
		HTTP:       transport.NewHTTP(cfg.GameClient.RequestTimeout),
		PlayerName: os.Getenv("USER"),
	}
	client := gameclient.New(tcp,
		gameclient.WithLogger(logger),
		gameclient.WithPollInterval(cfg.GameClient.PollInterval),
	)

	if err := client.Start(ctx, args); err != nil {
		exitWithError(logger, err)
	}
	if err := client.Wait(ctx); err != nil {
		exitWithError(logger, err)
	}
	if err := tcp.AwaitWelcome(); err != nil {
		exitWithError(logger, err)
	}
	logger.Infof("[GameClient] joined game at %s", tcp.Target())

	<-ctx.Done()
	if err := client.Stop(); err != nil {
		logger.Warnf("[GameClient] error stopping: %v", err)
	}
	if err := tcp.Close(); err != nil {
		logger.Warnf("[GameClient] error closing connection: %v", err)
	}
}

// extractConfigFlag pulls --config out of args since flag parsing is disabled
// for the client command.
func extractConfigFlag(args []string) []string {
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case (arg == "--config" || arg == "-c") && i+1 < len(args):
			ConfigFlag = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			ConfigFlag = strings.TrimPrefix(arg, "--config=")
		default:
			rest = append(rest, arg)
		}
	}
	return rest
}
