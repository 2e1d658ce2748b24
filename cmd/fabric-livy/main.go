// Package main provides the fabric-livy command line query runner.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/txn2/fabric-livy/pkg/credentials"
	"github.com/txn2/fabric-livy/pkg/livy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	sql         string
	file        string
	language    string
	timeout     time.Duration
	keepSession bool
	verbose     bool
}

func parseFlags(args []string) (options, error) {
	opts := options{}
	fs := flag.NewFlagSet("fabric-livy", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to credentials profile (yaml)")
	fs.StringVar(&opts.sql, "sql", "", "Statement to execute")
	fs.StringVar(&opts.file, "file", "", "File containing the statement to execute")
	fs.StringVar(&opts.language, "language", livy.LanguageSQL, "Statement language: sql, pyspark")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Overall deadline, 0 for none")
	fs.BoolVar(&opts.keepSession, "keep-session", false, "Leave the remote session running on exit")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func setupSignalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func statement(opts options) (string, error) {
	switch {
	case opts.sql != "":
		return opts.sql, nil
	case opts.file != "":
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", fmt.Errorf("reading statement file: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("one of -sql or -file is required")
	}
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	if opts.configPath == "" {
		return fmt.Errorf("-config is required")
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	code, err := statement(opts)
	if err != nil {
		return err
	}

	creds, err := credentials.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.keepSession {
		creds.KeepSession = true
	}

	ctx, cancel := setupSignalContext(opts.timeout)
	defer cancel()

	manager := livy.Open(creds, log)
	conn, err := manager.Connect(ctx)
	if err != nil {
		return err
	}
	defer manager.Disconnect(context.Background())

	wrapper := livy.NewConnectionWrapper(conn, log).Cursor()
	if err := wrapper.Execute(ctx, code, opts.language, nil); err != nil {
		return err
	}

	return printRows(wrapper)
}

func printRows(wrapper *livy.ConnectionWrapper) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, col := range wrapper.Description() {
		fmt.Fprintf(w, "%s\t", col.Name)
	}
	fmt.Fprintln(w)
	for _, row := range wrapper.FetchAll() {
		for _, value := range row {
			fmt.Fprintf(w, "%v\t", value)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
