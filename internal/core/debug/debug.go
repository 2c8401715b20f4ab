// Package debug holds the optional tooling enabled through the debugging
// section of the config.
package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/paddle/internal/core"
)

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(logger *logrus.Logger, cfg *core.Config) {
	if cfg.Debugging.PprofEnabled {
		startPprofServer(logger, cfg.Debugging.PprofPort)
	}
}

func startPprofServer(logger *logrus.Logger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

var dumper = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}

// Dump logs a detailed rendering of v at debug level. Nothing is rendered
// unless the logger would write it.
func Dump(logger *logrus.Logger, label string, v interface{}) {
	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	logger.Debugf("%s:\n%s", label, dumper.Sdump(v))
}
