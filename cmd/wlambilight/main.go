// wlambilight mirrors the edges of a Wayland output onto a serial LED strip
// mounted around the monitor.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"periph.io/x/conn/v3/uart"

	"wlambilight.app/ambilight/capture"
	"wlambilight.app/ambilight/internal/config"
	"wlambilight.app/ambilight/internal/driver"
	"wlambilight.app/ambilight/internal/idle"
	"wlambilight.app/ambilight/internal/serial"
)

// usageError exits with status 2.
type usageError struct{ error }

func (usageError) ExitCode() int { return 2 }

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := run(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(coder.ExitCode())
		}
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

type flags struct {
	set *pflag.FlagSet

	configPath    string
	output        string
	device        string
	rate          config.Frequency
	baud          int
	renderNode    string
	frameTimeout  time.Duration
	retries       int
	overlayCursor bool
	blankWhenIdle bool
	listOutputs   bool
	saveConfig    bool
	verbose       bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{rate: config.Frequency{Frequency: config.DefaultRate}}
	fs := pflag.NewFlagSet("wlambilight", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", config.DefaultPath(), "YAML config file")
	fs.StringVarP(&f.output, "output", "o", "", "output to capture: description substring, name, or \"make model\"")
	fs.StringVarP(&f.device, "device", "d", "", "serial device of the LED controller")
	fs.Var(&f.rate, "rate", "frames per second sent to the strip")
	fs.IntVar(&f.baud, "baud", config.DefaultBaud, "serial baud rate")
	fs.StringVar(&f.renderNode, "render-node", "", "DRM render node used to map frames")
	fs.DurationVar(&f.frameTimeout, "frame-timeout", 0, "give up on a frame after this long (0 waits forever)")
	fs.IntVar(&f.retries, "retries", 0, "extra requests after a temporary cancel, within one tick")
	fs.BoolVar(&f.overlayCursor, "overlay-cursor", false, "include the cursor in captured frames")
	fs.BoolVar(&f.blankWhenIdle, "blank-when-idle", false, "turn the strip off while the screensaver is active or the system sleeps")
	fs.BoolVar(&f.listOutputs, "list-outputs", false, "print the compositor's outputs and exit")
	fs.BoolVar(&f.saveConfig, "save-config", false, "write the resolved settings to the config file and exit")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wlambilight -o DP-3 -d /dev/ttyUSB2 [flags]\n\n%s", fs.FlagUsages())
	}
	f.set = fs

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

// resolve layers defaults, the config file, the environment and the flags
// that were set explicitly. An explicit --config must exist unless it is
// about to be written.
func (f *flags) resolve() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.set.Changed("config") && !f.saveConfig {
		cfg, err = config.Load(f.configPath)
	} else {
		cfg, err = config.LoadOptional(f.configPath)
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if f.set.Changed("output") {
		cfg.Output = f.output
	}
	if f.set.Changed("device") {
		cfg.Device = f.device
	}
	if f.set.Changed("rate") {
		cfg.Rate = f.rate
	}
	if f.set.Changed("baud") {
		cfg.Baud = f.baud
	}
	if f.set.Changed("render-node") {
		cfg.RenderNode = f.renderNode
	}
	if f.set.Changed("frame-timeout") {
		cfg.FrameTimeout = f.frameTimeout
	}
	if f.set.Changed("retries") {
		cfg.Retries = f.retries
	}
	if f.set.Changed("overlay-cursor") {
		cfg.OverlayCursor = f.overlayCursor
	}
	if f.set.Changed("blank-when-idle") {
		cfg.BlankWhenIdle = f.blankWhenIdle
	}
	if f.verbose {
		cfg.LogLevel = zerolog.DebugLevel.String()
	}
	return cfg, nil
}

func run(args []string) error {
	f, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return usageError{err}
	}

	if f.listOutputs {
		return printOutputs()
	}

	cfg, err := f.resolve()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}
	zerolog.SetGlobalLevel(cfg.Level())
	logger := log.Logger

	if f.saveConfig {
		if err := config.Save(f.configPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		logger.Info().Str("path", f.configPath).Msg("config saved")
		return nil
	}

	port, err := serial.Open(cfg.Device)
	if err != nil {
		return err
	}
	defer port.Close()
	link, err := port.Connect(cfg.BaudFrequency(), uart.One, uart.NoParity, uart.NoFlow, 8)
	if err != nil {
		return err
	}
	logger.Info().Str("link", link.String()).Msg("serial link ready")

	captureLog := logger.With().Str("component", "capture").Logger()
	sess, err := capture.Open(&capture.Options{
		Output:        cfg.Output,
		RenderNode:    cfg.RenderNode,
		Retries:       cfg.Retries,
		FrameTimeout:  cfg.FrameTimeout,
		OverlayCursor: cfg.OverlayCursor,
		Logger:        &captureLog,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	opts := driver.Options{
		Source:        sess,
		Link:          link,
		BlankWhenIdle: cfg.BlankWhenIdle,
		Period:        cfg.Rate.Period(),
		Logger:        logger.With().Str("component", "driver").Logger(),
	}
	if cfg.BlankWhenIdle {
		w := idle.Watch(logger.With().Str("component", "idle").Logger())
		defer w.Close()
		opts.Idle = w
	}
	d, err := driver.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

func printOutputs() error {
	outputs, err := capture.ListOutputs()
	for _, o := range outputs {
		fmt.Printf("%-12s %s\n", o.Name, o)
	}
	return err
}
