// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/jhu-cisst/cisst-sub002/lib/config"
	"github.com/jhu-cisst/cisst-sub002/lib/lcm"
	"github.com/jhu-cisst/cisst-sub002/lib/managerproxy"
	"github.com/jhu-cisst/cisst-sub002/lib/version"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var (
		address     string
		configPath  string
		timeout     time.Duration
		verbose     bool
		noColor     bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("meshctl", pflag.ContinueOnError)
	flagSet.StringVar(&address, "gcm", "", "manager proxy address of the GCM (default: global.listen_address)")
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $MESH_CONFIG)")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "overall deadline")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log proxy activity to stderr")
	flagSet.BoolVar(&noColor, "no-color", false, "disable styled output")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() { printHelp(flagSet) }
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Fprintf(stdout, "meshctl %s\n", version.Info())
		return nil
	}
	if flagSet.NArg() == 0 {
		printHelp(flagSet)
		return errors.New("no command given")
	}
	command, ok := commands[flagSet.Arg(0)]
	if !ok {
		return fmt.Errorf("unknown command %q", flagSet.Arg(0))
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else if os.Getenv(config.EnvVar) != "" {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if address == "" {
		address = dialAddress(cfg.Global.ListenAddress)
	}

	logger := slog.New(slog.DiscardHandler)
	if verbose {
		logger = newVerboseLogger()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// meshctl joins the mesh as a process with no components for as long
	// as the command runs.
	localConfig, err := lcm.ConfigFromProxy("meshctl-"+uuid.NewString()[:8], cfg.Proxy)
	if err != nil {
		return err
	}
	localConfig.Logger = logger
	local, err := lcm.New(localConfig)
	if err != nil {
		return err
	}
	defer local.Close()

	client, err := managerproxy.Dial(ctx, managerproxy.ClientConfig{
		Address:     address,
		Dialer:      &transport.TCPDialer{Timeout: cfg.Proxy.DialTimeout},
		Local:       local,
		Logger:      logger,
		CallTimeout: cfg.Proxy.CallTimeout,
	})
	if err != nil {
		return err
	}
	defer client.Close()
	local.Attach(client)

	env := &environment{
		gcm:      client,
		proxy:    client,
		stdout:   stdout,
		renderer: newRenderer(stdout, !noColor && isTerminal(stdout)),
	}
	return command.run(ctx, env, flagSet.Args()[1:])
}

// newVerboseLogger logs text to a terminal and JSON to anything else.
func newVerboseLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelDebug}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// dialAddress turns a listen address such as ":10705" into one a client
// can dial.
func dialAddress(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		return "127.0.0.1" + listen
	}
	return listen
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `meshctl queries a running Global Component Manager.

Usage:
  meshctl [flags] <command> [arguments]

Commands:
`)
	for _, name := range commandNames() {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", flagSet.FlagUsages())
}
