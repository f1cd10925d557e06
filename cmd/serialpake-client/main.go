// serialpake-client registers a password with a serialpake-server and runs
// handshakes against it.
//
// Usage:
//
//	serialpake-client [flags]
//
// Examples:
//
//	serialpake-client --list-ports
//	serialpake-client --port /dev/ttyACM0 --username alice --register
//	serialpake-client --tcp localhost:2000 --username alice --attempts 3
//
// The password is read from --password or the SERIALPAKE_PASSWORD
// environment variable.
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
	"github.com/backkem/serialpake/pkg/handshake"
	"github.com/backkem/serialpake/pkg/pake"
	"github.com/backkem/serialpake/pkg/transport"
	"github.com/spf13/cobra"
)

const passwordEnv = "SERIALPAKE_PASSWORD"

var (
	cfgFile   string
	port      string
	tcpAddr   string
	baudRate  int
	listPorts bool
	usbOnly   bool
	username  string
	password  string
	register  bool
	strong    bool
	implicit  bool
	explicit  bool
	params    string
	channel   string
	attempts  int
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "serialpake-client",
	Short: "Authenticate to a serialpake-server over a serial link",
	Long: `serialpake-client optionally registers a username and password with the
server, then runs one or more handshakes and prints the session key
fingerprint of each.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listPorts {
			return printPorts(cmd.OutOrStdout(), usbOnly)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pw := password
		if !cmd.Flags().Changed("password") {
			pw = os.Getenv(passwordEnv)
		}
		if pw == "" {
			return fmt.Errorf("no password: use --password or %s", passwordEnv)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, []byte(pw), cmd.OutOrStdout())
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (.toml, .yaml)")
	f.StringVar(&port, "port", "", "serial port name")
	f.StringVar(&tcpAddr, "tcp", "", "connect to a TCP serial bridge at host:port instead of a serial port")
	f.IntVar(&baudRate, "baud", transport.DefaultBaudRate, "serial baud rate")
	f.BoolVar(&listPorts, "list-ports", false, "list serial ports and exit")
	f.BoolVar(&usbOnly, "usb-only", false, "with --list-ports, only list USB ports")
	f.StringVarP(&username, "username", "u", "", "username")
	f.StringVarP(&password, "password", "p", "", "password (default: $"+passwordEnv+")")
	f.BoolVar(&register, "register", false, "register the credentials before the handshake")
	f.BoolVar(&strong, "strong", false, "use strong augmentation")
	f.BoolVar(&implicit, "implicit", false, "skip the authenticator round")
	f.BoolVar(&explicit, "explicit", false, "require the authenticator round (default)")
	f.StringVar(&params, "params", "", "password hashing parameters for --register")
	f.StringVar(&channel, "channel", "", "channel identifier bound into every session")
	f.IntVar(&attempts, "attempts", 1, "number of handshakes to run")
	f.StringVar(&logLevel, "log-level", "", "log level: error, warn, info, debug, trace")

	rootCmd.MarkFlagsMutuallyExclusive("port", "tcp")
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
	}
	if f.Changed("tcp") {
		cfg.Endpoint = transport.TCPEndpoint(tcpAddr).String()
	}
	if f.Changed("baud") {
		cfg.BaudRate = baudRate
	}
	if f.Changed("username") {
		cfg.Username = username
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
	if f.Changed("params") {
		cfg.Params = params
	}
	if f.Changed("channel") {
		cfg.Channel = channel
	}
	if f.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if cfg.Endpoint == "" {
		return config.Config{}, errors.New("one of --port or --tcp is required")
	}
	if cfg.Username == "" {
		return config.Config{}, errors.New("--username is required")
	}
	if attempts < 1 {
		return config.Config{}, fmt.Errorf("--attempts must be at least 1, got %d", attempts)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, pw []byte, out io.Writer) error {
	lf := cfg.LoggerFactory()

	ep, err := transport.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return err
	}
	t, err := transport.Open(ep, cfg.OpenConfig(lf))
	if err != nil {
		return err
	}
	defer t.Close()

	client, err := handshake.NewClient(handshake.ClientConfig{
		Transport:     t,
		Augmenter:     cfg.Augmenter(),
		ChannelID:     []byte(cfg.Channel),
		Implicit:      cfg.Implicit,
		BufferSize:    cfg.BufferSize,
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}

	user := []byte(cfg.Username)
	if register {
		p, err := cfg.PakeParams()
		if err != nil {
			return err
		}
		if err := client.Register(ctx, user, pw, p); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		fmt.Fprintf(out, "registered %q with %s\n", cfg.Username, p)
	}

	var failed int
	for i := 0; i < attempts; i++ {
		res, err := client.Handshake(ctx, user, pw)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil && !isProtocolFailure(err) {
			return err
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "handshake %d failed: %v\n", i+1, err)
			continue
		}
		fmt.Fprintf(out, "session %s established, key %s.. (%d bytes sent, %d received, %s)\n",
			res.SessionID, hex.EncodeToString(res.Key[:8]),
			res.Stats.BytesSent, res.Stats.BytesReceived, res.Elapsed.Round(time.Millisecond))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d handshakes failed", failed, attempts)
	}
	return nil
}

// isProtocolFailure reports errors that end one attempt but leave the link
// usable for the next.
func isProtocolFailure(err error) bool {
	return errors.Is(err, pake.ErrAuthenticationFailed) || errors.Is(err, handshake.ErrUnexpectedMessage)
}

func printPorts(out io.Writer, usbOnly bool) error {
	ports, err := transport.ListPorts(usbOnly)
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(out, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(out, p)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
