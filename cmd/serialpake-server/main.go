// serialpake-server accepts one registration over a serial link and then
// authenticates clients against it, one handshake at a time.
//
// Usage:
//
//	serialpake-server [flags]
//
// Examples:
//
//	serialpake-server --port /dev/ttyUSB0
//	serialpake-server --tcp-listen :2000 --store creds.db --strong
//	serialpake-server --config server.toml --log-level debug
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/serialpake/pkg/config"
	"github.com/backkem/serialpake/pkg/credential"
	"github.com/backkem/serialpake/pkg/handshake"
	"github.com/backkem/serialpake/pkg/transport"
	"github.com/pion/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile          string
	port             string
	tcpListen        string
	baudRate         int
	storePath        string
	capacity         int
	strong           bool
	implicit         bool
	explicit         bool
	channel          string
	decoyParams      string
	skipRegistration bool
	logLevel         string
)

var rootCmd = &cobra.Command{
	Use:   "serialpake-server",
	Short: "Serve password-authenticated key exchange over a serial link",
	Long: `serialpake-server waits for a single registration on the link, stores it,
and then answers handshakes from the client until interrupted. Every
established session prints its id and a key fingerprint.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, cmd.OutOrStdout())
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (.toml, .yaml)")
	f.StringVar(&port, "port", "", "serial port name")
	f.StringVar(&tcpListen, "tcp-listen", "", "accept one TCP bridge connection on this address instead of a serial port")
	f.IntVar(&baudRate, "baud", transport.DefaultBaudRate, "serial baud rate")
	f.StringVar(&storePath, "store", "", "SQLite credential database (default: a single in-memory slot)")
	f.IntVar(&capacity, "capacity", credential.DefaultCapacity, "maximum username length")
	f.BoolVar(&strong, "strong", false, "use strong augmentation")
	f.BoolVar(&implicit, "implicit", false, "skip the authenticator round")
	f.BoolVar(&explicit, "explicit", false, "require the authenticator round (default)")
	f.StringVar(&channel, "channel", "", "channel identifier bound into every session")
	f.StringVar(&decoyParams, "decoy-params", "", "password hashing parameters presented for unknown users")
	f.BoolVar(&skipRegistration, "skip-registration", false, "start in session mode (needs --store)")
	f.StringVar(&logLevel, "log-level", "", "log level: error, warn, info, debug, trace")

	rootCmd.MarkFlagsMutuallyExclusive("port", "tcp-listen")
	rootCmd.MarkFlagsMutuallyExclusive("implicit", "explicit")
}

// loadConfig merges defaults, the config file and the flags that were set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		if err := cfg.LoadFile(cfgFile); err != nil {
			return config.Config{}, err
		}
	}

	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Endpoint = transport.SerialEndpoint(port).String()
		cfg.Listen = ""
	}
	if f.Changed("tcp-listen") {
		cfg.Listen = tcpListen
	}
	if f.Changed("baud") {
		cfg.BaudRate = baudRate
	}
	if f.Changed("store") {
		cfg.StorePath = storePath
	}
	if f.Changed("capacity") {
		cfg.Capacity = capacity
	}
	if f.Changed("strong") {
		cfg.Strong = strong
	}
	if f.Changed("implicit") {
		cfg.Implicit = implicit
	}
	if f.Changed("explicit") {
		cfg.Implicit = !explicit
	}
	if f.Changed("channel") {
		cfg.Channel = channel
	}
	if f.Changed("decoy-params") {
		cfg.Params = decoyParams
	}
	if f.Changed("skip-registration") {
		cfg.SkipRegistration = skipRegistration
	}
	if f.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if cfg.Endpoint == "" && cfg.Listen == "" {
		return config.Config{}, errors.New("one of --port or --tcp-listen is required")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	lf := cfg.LoggerFactory()
	log := lf.NewLogger("serialpake-server")

	store, closeStore, err := openStore(cfg, lf)
	if err != nil {
		return err
	}
	defer closeStore()

	t, err := openTransport(ctx, cfg, lf)
	if err != nil {
		return err
	}
	defer t.Close()

	params, err := cfg.PakeParams()
	if err != nil {
		return err
	}

	srv, err := handshake.NewServer(handshake.ServerConfig{
		Transport:        t,
		Store:            store,
		Augmenter:        cfg.Augmenter(),
		ChannelID:        []byte(cfg.Channel),
		Implicit:         cfg.Implicit,
		DecoyParams:      &params,
		BufferSize:       cfg.BufferSize,
		SkipRegistration: cfg.SkipRegistration,
		OnEvent:          printEvent(out),
		LoggerFactory:    lf,
	})
	if err != nil {
		return err
	}

	err = srv.Serve(ctx)
	log.Infof("stopped after %d established sessions, %d restarts", srv.Established(), srv.Restarts())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(cfg config.Config, lf logging.LoggerFactory) (credential.Store, func(), error) {
	if cfg.StorePath == "" {
		s, err := credential.NewSingleUser(cfg.Capacity)
		return s, func() {}, err
	}

	s, err := credential.OpenSQLite(credential.SQLiteConfig{
		Path:          cfg.StorePath,
		Capacity:      cfg.Capacity,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return s, func() { s.Close() }, nil
}

func openTransport(ctx context.Context, cfg config.Config, lf logging.LoggerFactory) (transport.Transport, error) {
	if cfg.Listen == "" {
		ep, err := transport.ParseEndpoint(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		return transport.Open(ep, cfg.OpenConfig(lf))
	}

	ln, err := transport.ListenTCP(transport.TCPConfig{
		Address:       cfg.Listen,
		ReadTimeout:   cfg.ReadTimeout,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	fmt.Fprintf(os.Stderr, "waiting for a bridge connection on %s\n", ln.Addr())
	stream, err := ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func printEvent(out io.Writer) handshake.EventHandler {
	return func(ev handshake.Event) {
		switch ev.Type {
		case handshake.EventRegistered:
			fmt.Fprintf(out, "registered %q\n", ev.Username)
		case handshake.EventRegistrationRejected:
			fmt.Fprintf(out, "registration rejected: %v\n", ev.Err)
		case handshake.EventSessionEstablished:
			fmt.Fprintf(out, "session %s established for %q, key %s.. (%s)\n",
				ev.SessionID, ev.Username, hex.EncodeToString(ev.Key[:8]), ev.Elapsed.Round(time.Millisecond))
		case handshake.EventAuthenticationFailed:
			fmt.Fprintf(out, "session %s: authentication failed for %q\n", ev.SessionID, ev.Username)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
