// logtail subscribes to the three channels of a log group and prints every
// record published by a servicelog pub/sub sink.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/wayneeseguin/servicelog/pkg/backends"
	"github.com/wayneeseguin/servicelog/pkg/broker"
	"github.com/wayneeseguin/servicelog/pkg/codec"
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
		envFile   string
		url       string
		group     string
		namespace string
		only      []string
	)

	flagSet := pflag.NewFlagSet("logtail", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is ignored)")
	flagSet.StringVar(&url, "url", "", "broker connection string (default $"+servicelog.EnvConnectionString+")")
	flagSet.StringVarP(&group, "group", "g", "", "log group to follow (default $"+servicelog.EnvGroupName+")")
	flagSet.StringVar(&namespace, "namespace", backends.DefaultNamespace, "channel namespace")
	flagSet.StringSliceVar(&only, "only", nil, "restrict to channels: stdout, warn, stderr")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "loading %s", envFile)
	}
	if url == "" {
		url = os.Getenv(servicelog.EnvConnectionString)
	}
	if group == "" {
		group = os.Getenv(servicelog.EnvGroupName)
	}
	if url == "" || group == "" {
		return errors.New("--url and --group are required")
	}

	channels, err := selectChannels(backends.ChannelNames(namespace, group), only)
	if err != nil {
		return err
	}

	diag := logrus.New()
	diag.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	diag.WithField("channels", strings.Join(channels, ",")).Info("following log group")
	return broker.Subscribe(ctx, url, channels, printer(os.Stdout, diag))
}

func selectChannels(all backends.Channels, only []string) ([]string, error) {
	if len(only) == 0 {
		return all.All(), nil
	}
	byName := map[string]string{"stdout": all.Stdout, "warn": all.Warn, "stderr": all.Stderr}
	out := make([]string, 0, len(only))
	for _, name := range only {
		channel, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, errors.Errorf("unknown channel %q", name)
		}
		out = append(out, channel)
	}
	return out, nil
}

// printer renders each decoded record as "<channel> <group>/<index> <message>".
// Payloads that do not decode are reported and skipped.
func printer(w io.Writer, diag logrus.FieldLogger) broker.Handler {
	return func(channel, payload string) {
		rec, err := codec.Decode(payload)
		if err != nil {
			diag.WithError(err).WithField("channel", channel).Warn("skipping malformed record")
			return
		}

		line := fmt.Sprintf("%s %s/%s %s", channel, rec.Group, rec.Index, strings.TrimSuffix(rec.Message, "\n"))
		if rec.Metadata != nil {
			line += " [" + *rec.Metadata + "]"
		}
		fmt.Fprintln(w, line)
	}
}
