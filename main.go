// Command splitdemo drives the LED board of the split circuit demo.  It
// replays a cell trace (from a file, standard input or a serial line) into
// the demo and blinks one LED per sampled cell.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// setup loads the configuration named by the global flags, applies the
// overrides and builds the logger.
func setup(c *cli.Context) (*ConfigManager, *zap.Logger, error) {
	cfgMgr := NewConfigManager(c.String("config"))
	if err := cfgMgr.Load(); err != nil {
		return nil, nil, err
	}
	err := cfgMgr.Override(func(cfg *Config) {
		if c.IsSet("backend") {
			cfg.Backend = c.String("backend")
		}
		if c.IsSet("log-level") {
			cfg.LogLevel = c.String("log-level")
		}
	})
	if err != nil {
		return nil, nil, err
	}
	cfg := cfgMgr.Get()
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	return cfgMgr, logger, nil
}

// startDemo creates and initialises a demo for the loaded configuration.
func startDemo(cfg Config, logger *zap.Logger) (*Demo, error) {
	backend, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	demo := NewDemo(cfg, backend, WithLogger(logger))
	if err := demo.Init(); err != nil {
		return nil, err
	}
	return demo, nil
}

func runAction(c *cli.Context) (e error) {
	cfgMgr, logger, e := setup(c)
	if e != nil {
		return e
	}
	defer logger.Sync()

	demo, e := startDemo(cfgMgr.Get(), logger)
	if e != nil {
		return e
	}
	defer func() { e = multierr.Append(e, demo.Shutdown()) }()

	src, e := openTraceSource(c.String("trace"), c.String("serial"), c.Int("baud"))
	if e != nil {
		return e
	}
	defer src.Close()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stats, e := ReplayTrace(ctx, src, demo, c.Duration("pace"), logger)
	logger.Info("trace finished",
		zap.Int("cells", stats.Cells),
		zap.Int("setups", stats.Setups),
		zap.Int("instructions", stats.Instructions),
		zap.Int("skipped", stats.Skipped),
	)
	if errors.Is(e, context.Canceled) {
		return nil
	}
	if e != nil {
		return e
	}
	// let the last LED go dark before releasing the lines
	_ = sleepCtx(ctx, cfgMgr.Get().BlinkDuration.Std())
	return nil
}

func selftestAction(c *cli.Context) (e error) {
	cfgMgr, logger, e := setup(c)
	if e != nil {
		return e
	}
	defer logger.Sync()

	demo, e := startDemo(cfgMgr.Get(), logger)
	if e != nil {
		return e
	}
	defer func() { e = multierr.Append(e, demo.Shutdown()) }()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	step := c.Duration("step")
	for _, dir := range directions {
		for sc := Subcircuit(0); sc < NumSubcircuits; sc++ {
			logger.Info("blinking", zap.Uint16("subcircuit", uint16(sc)), zap.Stringer("direction", dir))
			demo.Blink(sc, dir, step)
			if err := sleepCtx(ctx, step); err != nil {
				return nil
			}
		}
	}
	return nil
}

func configAction(c *cli.Context) error {
	cfgMgr, _, e := setup(c)
	if e != nil {
		return e
	}
	enc := yaml.NewEncoder(c.App.Writer)
	defer enc.Close()
	return enc.Encode(cfgMgr.Get())
}

var runFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "trace",
		Value: "-",
		Usage: "cell trace `FILE`, or - for standard input",
	},
	&cli.StringFlag{
		Name:  "serial",
		Usage: "read the cell trace from serial `PORT` instead",
	},
	&cli.IntFlag{
		Name:  "baud",
		Value: DefaultBaudRate,
		Usage: "serial baud rate",
	},
	&cli.DurationFlag{
		Name:  "pace",
		Value: 0,
		Usage: "delay between replayed cells",
	},
}

var app = &cli.App{
	Name:  "splitdemo",
	Usage: "Blink the split circuit demo LEDs for sampled relay cells.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Value:   defaultConfigPath,
			Usage:   "configuration `FILE` (.json, .yaml or .yml)",
			EnvVars: []string{"SPLITDEMO_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "indicator backend: gpio, log or null",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level letter: D, I, W, E",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "run",
			Usage:  "replay a cell trace",
			Flags:  runFlags,
			Action: runAction,
		},
		{
			Name:  "selftest",
			Usage: "blink every LED once",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "step",
					Value: 500 * time.Millisecond,
					Usage: "delay between LEDs",
				},
			},
			Action: selftestAction,
		},
		{
			Name:   "config",
			Usage:  "print the effective configuration",
			Action: configAction,
		},
	},
	DefaultCommand: "run",
}

// Entry point for the split circuit demo
func main() {
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
