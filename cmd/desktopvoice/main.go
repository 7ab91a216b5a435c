// Command desktopvoice listens for a wake word on the default microphone and
// transcribes the spoken command that follows it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/desktop-voice-lab/internal/config"
	"github.com/desktop-voice-lab/internal/logging"
)

var version = "dev"

// exitError carries the process exit status for a setup failure: 2 for
// configuration problems, 1 for everything else.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func setupFailed(err error) error { return &exitError{code: 1, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	_ = logging.Sync()
	if err == nil {
		return
	}
	code := 1
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
	}
	fmt.Fprintf(os.Stderr, "desktopvoice: %v\n", err)
	if hint := config.Hint(err); hint != "" {
		fmt.Fprintln(os.Stderr, hint)
	}
	os.Exit(code)
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "desktopvoice",
		Short:         "Wake-word activated command transcription from the default microphone",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "environment file loaded before reading configuration")

	listen := &cobra.Command{
		Use:   "listen",
		Short: "Listen for the wake word and transcribe the command after it (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(envFile, true)
			if err != nil {
				return err
			}
			return runListen(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	meter := &cobra.Command{
		Use:   "meter",
		Short: "Print live microphone RMS and peak levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(envFile, false)
			if err != nil {
				return err
			}
			return runMeter(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	root.RunE = listen.RunE
	root.Args = cobra.NoArgs
	root.AddCommand(listen, meter)
	return root
}

// loadConfig reads the env file before initialising the logger so that a
// LOG_LEVEL set there takes effect.
func loadConfig(envFile string, validate bool) (config.Config, error) {
	cfg, err := config.Load(envFile)
	logging.Init()
	logging.SetLevel(cfg.LogLevel)
	if err == nil && validate {
		err = cfg.Validate()
	}
	if err == nil && !validate && (cfg.SampleRate <= 0 || cfg.ChunkFrames() <= 0) {
		err = &config.SetupError{
			Err:  fmt.Errorf("invalid block size %d at %d Hz", cfg.ChunkFrames(), cfg.SampleRate),
			Hint: "SAMPLE_RATE and CHUNK_SECONDS must be positive.",
		}
	}
	if err != nil {
		return cfg, &exitError{code: 2, err: err}
	}
	return cfg, nil
}
