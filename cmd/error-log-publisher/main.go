// error-log-publisher installs the log sink selected by the environment
// (LOG_KIND and friends), emits one error record and keeps the process
// alive so the background worker can ship it. It is the smallest possible
// producer for checking a deployment's log pipeline end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/wayneeseguin/servicelog/pkg/servicelog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile      string
		message      string
		startupDelay time.Duration
		hold         time.Duration
		verbose      bool
	)

	flagSet := pflag.NewFlagSet("error-log-publisher", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is ignored)")
	flagSet.StringVar(&message, "message", "hi! i'm an error log", "error record to publish")
	flagSet.DurationVar(&startupDelay, "startup-delay", 0, "wait after installing the sink before the first record")
	flagSet.DurationVar(&hold, "hold", time.Minute, "how long to keep running after publishing")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "show debug diagnostics from the log pipeline")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "loading %s", envFile)
	}

	diag := logrus.New()
	diag.SetOutput(os.Stderr)
	if verbose {
		diag.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	sink, err := servicelog.InitFromEnv(ctx,
		servicelog.WithDiagnostics(diag.WithField("run", runID)),
		servicelog.WithMetadata("run="+runID),
	)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sink.Close(closeCtx); err != nil {
			diag.WithError(err).Error("closing log sink")
		}
	}()

	if startupDelay > 0 {
		select {
		case <-time.After(startupDelay):
		case <-ctx.Done():
			return nil
		}
	}

	start := time.Now()
	sink.Error(message)
	sink.RequestFlush()

	select {
	case <-time.After(hold):
	case <-ctx.Done():
	}

	sink.Infof("total time: %ds", int(time.Since(start).Seconds()))
	return nil
}
