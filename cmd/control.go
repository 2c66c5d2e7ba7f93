package cmd

import (
	"syscall"

	"firestige.xyz/wsinspect/internal/config"
	"firestige.xyz/wsinspect/internal/daemon"
)

// Controller delivers control signals to a running daemon.
type Controller interface {
	Signal(sig syscall.Signal) (pid int, err error)
}

// pidController finds the daemon through its PID file.
type pidController struct {
	pidFile string
}

func (c pidController) Signal(sig syscall.Signal) (int, error) {
	return daemon.SignalRunning(c.pidFile, sig)
}

// newController resolves the PID file from the flag, then the configuration.
func newController(flagValue string) (Controller, error) {
	if flagValue != "" {
		return pidController{pidFile: flagValue}, nil
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return pidController{pidFile: cfg.Control.PIDFile}, nil
}
