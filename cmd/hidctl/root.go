package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/softhid/host"
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/host/hal/fifo"
	"github.com/ardnew/softhid/pkg"
	"github.com/ardnew/softhid/pkg/config"
)

// app is the state shared by every subcommand.
type app struct {
	// Global flags
	cfgFile    string
	verbose    int
	sim        bool
	packetSize int
	variants   []string
	timeout    time.Duration

	// Set during PersistentPreRun
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "hidctl",
		Short: "Talk to a USB HID security token",
		Long: `hidctl opens a security token over raw HID, sends framed requests and
prints the responses. Use --sim to run against an in-process simulated
token that echoes every request.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default $"+config.EnvPath+" or $XDG_CONFIG_HOME/softhid/config.toml)")
	flags.CountVarP(&a.verbose, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	flags.BoolVar(&a.sim, "sim", false, "use the simulated token instead of hardware")
	flags.IntVar(&a.packetSize, "packet-size", 0, "packet payload size in bytes (overrides config)")
	flags.StringSliceVar(&a.variants, "variant", nil, "variant names to open, in order (default all configured)")
	flags.DurationVar(&a.timeout, "timeout", 5*time.Second, "time to wait for the device and each response")

	root.AddCommand(
		newOpenCmd(a),
		newSendCmd(a),
		newInterruptCmd(a),
		newEmulateCmd(a),
		newVariantsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads the configuration and applies flag overrides.
func (a *app) setup() error {
	var err error
	if a.cfgFile != "" {
		a.cfg, err = config.Load(a.cfgFile)
	} else {
		a.cfg, err = config.LoadOrDefault(config.DefaultPath())
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if a.packetSize != 0 {
		a.cfg.PacketSize = a.packetSize
	}
	if len(a.variants) > 0 {
		sel, err := hal.Select(a.cfg.Variants(), a.variants...)
		if err != nil {
			return err
		}
		a.cfg.Devices = make([]config.Variant, len(sel))
		for i, v := range sel {
			a.cfg.Devices[i] = config.Variant(v)
		}
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.cfg.ApplyLog()
	switch {
	case a.verbose >= 2:
		pkg.SetLogLevel(slog.LevelDebug)
	case a.verbose == 1:
		pkg.SetLogLevel(slog.LevelInfo)
	}
	return nil
}

// session is one running engine.
type session struct {
	host   *host.Host
	opened chan hal.Variant
	events chan string
}

// start runs an engine configured from the loaded config. The caller must
// Quit it.
func (a *app) start(ctx context.Context, emulator host.Emulator) (*session, error) {
	s := &session{
		opened: make(chan hal.Variant, 1),
		events: make(chan string, 16),
	}

	opts := a.cfg.HostOptions()
	opts.Emulator = emulator
	opts.OnOpen = func(v hal.Variant) {
		select {
		case s.opened <- v:
		default:
		}
	}
	opts.OnDisconnect = func(err error) {
		pkg.LogWarn(pkg.ComponentCLI, "device lost", "error", err)
	}
	opts.OnEvent = func(code uint8, data []byte) {
		select {
		case s.events <- fmt.Sprintf("event 0x%02x % x", code, data):
		default:
			pkg.LogWarn(pkg.ComponentCLI, "event dropped", "code", code)
		}
	}
	if a.sim || emulator != nil {
		// Emulation needs no hardware; its platform stays empty.
		opts.Platform = fifo.New(fifo.Config{Variant: opts.Variants[0], Attached: a.sim})
	}

	s.host = host.New(opts)
	if err := s.host.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// open opens the device, waiting up to the timeout for one to arrive.
func (a *app) open(ctx context.Context, s *session) (hal.Variant, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	v, err := s.host.Open(ctx)
	if !errors.Is(err, pkg.ErrNoDevice) {
		return v, err
	}

	pkg.LogInfo(pkg.ComponentCLI, "waiting for device", "timeout", a.timeout)
	select {
	case v := <-s.opened:
		return v, nil
	case <-ctx.Done():
		s.host.Close()
		return hal.Variant{}, fmt.Errorf("%w: none of %d variants arrived", pkg.ErrNoDevice, len(a.cfg.Devices))
	}
}
