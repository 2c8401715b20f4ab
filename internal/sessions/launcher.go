package sessions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/paddle/internal/core"
)

var errNoLaunchCommand = errors.New("no game server launch command configured")

// Launcher starts a game server process for a new session.
type Launcher interface {
	Launch(ctx context.Context, id string) error
}

// ProcessLauncher runs the game server as a child process on this host. The
// process learns its session name, the registry to report to and the port
// range to pick from through its environment.
type ProcessLauncher struct {
	Logger *logrus.Logger
	// Command and arguments of the game server binary.
	Command []string
	// Address the game server registers with.
	RegistryAddress string
	MinPort         int
	MaxPort         int
}

func (l *ProcessLauncher) Launch(ctx context.Context, id string) error {
	if len(l.Command) == 0 {
		return errNoLaunchCommand
	}

	// The game server outlives the request that created it, so ctx is only
	// checked before starting.
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(l.Command[0], l.Command[1:]...)
	cmd.Env = append(os.Environ(),
		core.SessionNameEnv+"="+id,
		core.SessionsServiceEnv+"="+l.RegistryAddress,
		core.MinPortEnv+"="+strconv.Itoa(l.MinPort),
		core.MaxPortEnv+"="+strconv.Itoa(l.MaxPort),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error launching game server for session %s: %w", id, err)
	}
	l.logger().Infof("[Sessions] launched game server for session %s (pid %d)", id, cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			l.logger().Warnf("[Sessions] game server for session %s exited: %v", id, err)
			return
		}
		l.logger().Infof("[Sessions] game server for session %s exited", id)
	}()
	return nil
}

func (l *ProcessLauncher) logger() *logrus.Logger {
	if l.Logger == nil {
		return core.DiscardLogger()
	}
	return l.Logger
}
