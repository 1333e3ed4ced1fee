package main

// Shared session construction for the subcommands: flag and config
// resolution, link selection, logger setup.

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vkaloerov/cecat/internal/config"
	"github.com/vkaloerov/cecat/internal/ecat"
	"github.com/vkaloerov/cecat/internal/errors"
	"github.com/vkaloerov/cecat/internal/link/raw"
	"github.com/vkaloerov/cecat/internal/link/sim"
	"github.com/vkaloerov/cecat/internal/logging"
	"github.com/vkaloerov/cecat/internal/ui"
)

// simInterfaceName is what a simulated session reports as its interface.
const simInterfaceName = "sim0"

type sessionContext struct {
	session *ecat.Session
	logger  *logging.Logger
	cfg     *config.Config
	useSim  bool
}

func (sc *sessionContext) close() {
	if sc.session != nil {
		sc.session.Close()
	}
	if sc.logger != nil {
		sc.logger.Close()
	}
}

// loadOptions merges the config file (if given) with command line flags;
// flags win.
func loadOptions(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.CreateDefaultConfig()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if ifname, _ := cmd.Flags().GetString("interface"); ifname != "" {
		cfg.Interface = ifname
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// openSession builds the logger, picks the link layer, resolves the
// interface name and opens the session.
func openSession(cmd *cobra.Command) (*sessionContext, error) {
	cfg, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}

	level := logging.LogLevelInfo
	if cfg.Verbose {
		level = logging.LogLevelVerbose
	}
	logger, err := logging.NewLogger(level, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	useSim, _ := cmd.Flags().GetBool("sim")

	var link ecat.LinkLayer
	ifname := cfg.Interface
	if useSim {
		link = sim.NewDefaultSegment()
		ifname = simInterfaceName
	} else {
		link = raw.New(logger)
		if ifname == "" {
			ifname, err = selectInterface(logger)
			if err != nil {
				logger.Close()
				return nil, err
			}
		}
	}

	timeouts := ecat.Timeouts{
		State:    time.Duration(cfg.Timeouts.StateMs) * time.Millisecond,
		IO:       time.Duration(cfg.Timeouts.ExchangeUs) * time.Microsecond,
		Register: time.Duration(cfg.Timeouts.RegisterUs) * time.Microsecond,
	}

	session := ecat.NewSession(link, logger, timeouts)
	if err := session.Open(ifname); err != nil {
		logger.Close()
		return nil, errors.WrapLinkError(err, ifname)
	}

	return &sessionContext{session: session, logger: logger, cfg: cfg, useSim: useSim}, nil
}

// selectInterface falls back to the interactive picker when no interface
// was named. Without a terminal there is nothing to ask.
func selectInterface(logger *logging.Logger) (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice == 0 {
		return "", fmt.Errorf("no interface given; use --interface or --sim")
	}

	name, err := ui.SelectInterface()
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("interface selection canceled")
	}
	logger.Verbose("selected interface %s", name)
	return name, nil
}
