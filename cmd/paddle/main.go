// The paddle command runs every part of the paddle backend: dedicated game
// servers, the game client bootstrap, the matchmaker and the sessions service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dcrodman/paddle/internal/core"
	"github.com/dcrodman/paddle/internal/core/debug"
)

var ConfigFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "paddle",
		Short: "Paddle soccer game servers, matchmaking and related tools",
	}
	rootCmd.PersistentFlags().StringVarP(&ConfigFlag, "config", "c", "./", "Path to the directory containing the config file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(matchmakerCmd)
	rootCmd.AddCommand(sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setUp loads the config and logger shared by every command and returns a
// context that is cancelled on Ctrl-C or SIGTERM.
func setUp() (context.Context, *core.Config, *logrus.Logger) {
	cfg, err := core.LoadConfig(ConfigFlag)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	logger, err := core.NewLogger(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	debug.StartUtilities(logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go exitHandler(logger, cancel, c)

	return ctx, cfg, logger
}

// exitHandler cancels the top-level context on the first signal so that
// everything can shut down cleanly, and exits immediately on the second.
func exitHandler(logger *logrus.Logger, cancelFn func(), c chan os.Signal) {
	<-c
	logger.Info("waiting to shut down gracefully...")
	cancelFn()

	<-c
	logger.Info("hard exiting (killed)")
	os.Exit(1)
}

func exitWithError(logger *logrus.Logger, err error) {
	logger.Error(err)
	os.Exit(1)
}
