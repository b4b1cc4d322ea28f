package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/witransfer/witransfer/internal/config"
	"github.com/witransfer/witransfer/internal/descriptor"
	"github.com/witransfer/witransfer/internal/discovery"
	"github.com/witransfer/witransfer/internal/feed"
	"github.com/witransfer/witransfer/internal/logging"
	"github.com/witransfer/witransfer/internal/protocol"
	"github.com/witransfer/witransfer/internal/tui"
	"github.com/witransfer/witransfer/internal/ui"
)

// discoverFlags holds the values of the discover flags. Only flags the user
// actually set override the config file.
type discoverFlags struct {
	port        int
	bind        string
	broadcast   []string
	interval    time.Duration
	readTimeout time.Duration
	ttl         time.Duration
	queueSize   int
	mdns        bool
	reuseAddr   bool
	feed        string
	uiMode      string
	name        string
	logLevel    string
	duration    time.Duration
}

// Command flags
var (
	configPath string
	discover   discoverFlags
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the OS config dir)")

	addDiscoverFlags(rootCmd.Flags(), &discover)
	addDiscoverFlags(discoverCmd.Flags(), &discover)

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(configCmd)
}

func addDiscoverFlags(fs *pflag.FlagSet, f *discoverFlags) {
	fs.IntVar(&f.port, "port", protocol.DefaultPort, "UDP discovery port")
	fs.StringVar(&f.bind, "bind", "", "Local IPv4 address to bind (default all interfaces)")
	fs.StringSliceVar(&f.broadcast, "broadcast", nil, `Broadcast address, repeatable; "auto" uses every interface`)
	fs.DurationVar(&f.interval, "interval", discovery.DefaultInterval, "Announcement interval")
	fs.DurationVar(&f.readTimeout, "read-timeout", discovery.DefaultReadTimeout, "Receive poll timeout")
	fs.DurationVar(&f.ttl, "ttl", 0, "Forget peers not heard from for this long (0 keeps them)")
	fs.IntVar(&f.queueSize, "queue-size", discovery.DefaultQueueSize, "Listener to registry queue capacity")
	fs.BoolVar(&f.mdns, "mdns", false, "Also advertise and browse over mDNS")
	fs.BoolVar(&f.reuseAddr, "reuse-addr", false, "Allow several instances to share the port")
	fs.StringVar(&f.feed, "feed", "", "Serve the peer list over HTTP/websocket on this address (e.g. :8080)")
	fs.StringVar(&f.uiMode, "ui", config.UIModePlain, "Output mode ("+strings.Join(config.ValidUIModes, ", ")+")")
	fs.StringVar(&f.name, "name", "", "Display name to announce (default is the user's full name)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error); default silent")
	fs.DurationVar(&f.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
}

// discoverCmd runs a discovery session
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover peers on the local network",
	Long: `Announce this host and list other WiTransfer instances on the network.

Discovery runs until interrupted (Ctrl+C) or until --duration elapses.
Peers are printed as they appear and disappear. Use --ui tui for an
interactive list or --ui json for one JSON snapshot per change.`,
	Example: `  # Discover until interrupted
  witransfer discover

  # Ten second scan, JSON output for scripting
  witransfer discover --duration 10s --ui json

  # Directed broadcast on every interface, plus mDNS
  witransfer discover --broadcast auto --mdns

  # Interactive list with a websocket feed for other tools
  witransfer discover --ui tui --feed :8080`,
	RunE: runDiscover,
}

// loadSettings reads the config file and applies explicitly set flags
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := applyDiscoverFlags(settings, cmd.Flags(), &discover); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// applyDiscoverFlags overrides settings with every flag set on fs
func applyDiscoverFlags(s *config.Settings, fs *pflag.FlagSet, f *discoverFlags) error {
	var err error
	fs.Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "port":
			s.Discovery.Port = f.port
		case "bind":
			s.Discovery.Bind = f.bind
		case "broadcast":
			s.Discovery.Broadcast = f.broadcast
		case "interval":
			s.Discovery.Interval = config.Duration(f.interval)
		case "read-timeout":
			s.Discovery.ReadTimeout = config.Duration(f.readTimeout)
		case "ttl":
			s.Discovery.PeerTTL = config.Duration(f.ttl)
		case "queue-size":
			s.Discovery.QueueSize = f.queueSize
		case "mdns":
			s.Discovery.MDNS = f.mdns
		case "reuse-addr":
			s.Discovery.ReuseAddr = f.reuseAddr
		case "feed":
			s.Feed.Listen = f.feed
		case "ui":
			s.UI.Mode = f.uiMode
		case "name":
			s.Identity.DisplayName = f.name
		case "log-level":
			s.LogLevel = f.logLevel
		case "duration":
			if f.duration < 0 {
				err = fmt.Errorf("--duration must not be negative")
			}
		}
	})
	return err
}

func runDiscover(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	printer := ui.NewPrinter(cmd.OutOrStdout())

	settings, err := loadSettings(cmd)
	if err != nil {
		printer.PrintError("Invalid configuration", err, []string{
			"Check the flag values and the config file",
			"Show the effective file: witransfer config show",
		})
		return err
	}

	if err := logging.Initialize(settings.LogLevel); err != nil {
		return err
	}
	defer logging.Sync()

	cfg, err := settings.DiscoveryConfig()
	if err != nil {
		printer.PrintError("Invalid discovery settings", err, nil)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if discover.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, discover.duration)
		defer cancel()
	}

	mode := settings.UI.Mode
	if mode == "" {
		mode = config.UIModePlain
	}
	if mode == config.UIModeTUI && !ui.IsTerminal() {
		err := fmt.Errorf("--ui %s needs an interactive terminal", config.UIModeTUI)
		printer.PrintError("Cannot start the interactive list", err, []string{
			"Use --ui plain or --ui json when piping output",
		})
		return err
	}
	var (
		sinks   discovery.MultiSink
		plain   *ui.PlainSink
		tuiSink *tui.Sink
	)
	switch mode {
	case config.UIModeJSON:
		sinks = append(sinks, ui.NewJSONSink(cmd.OutOrStdout()))
	case config.UIModeTUI:
		tuiSink = tui.NewSink()
		sinks = append(sinks, tuiSink)
	default:
		plain = ui.NewPlainSink(printer)
		sinks = append(sinks, plain)
	}

	if settings.Feed.Listen != "" {
		f := feed.New()
		if err := f.Start(ctx, settings.Feed.Listen); err != nil {
			printer.PrintError("Peer feed failed to start", err, []string{
				"Choose another address with --feed",
			})
			return err
		}
		defer func() { _ = f.Shutdown(context.Background()) }()
		sinks = append(sinks, f)
	}

	provider := descriptor.NewSystem(settings.Identity.DisplayName)
	session, err := discovery.NewSession(cfg, provider, sinks)
	if err != nil {
		printer.PrintError("Invalid discovery settings", err, nil)
		return err
	}

	if mode == config.UIModePlain {
		printer.PrintHeader("LAN Discovery", "witransfer discover", discoverParams(cfg, settings)...)
	}

	started := time.Now()
	if err := session.Start(ctx); err != nil {
		printer.PrintError("Discovery failed to start", err,
			ui.HintLines(discovery.GetTroubleshootingHint(err)))
		return err
	}
	defer session.Stop()

	if mode == config.UIModeTUI {
		return runDiscoverTUI(cmd, session, tuiSink)
	}

	if mode == config.UIModePlain {
		printer.Println(ui.HeaderParamKeyStyle.Render("  Announcing as ") +
			ui.HeaderParamValueStyle.Render(session.Envelope().Descriptor.Label()) +
			ui.HeaderParamKeyStyle.Render(" from "+session.LocalAddr().String()))
		printer.Newline()
	}

	componentErr := session.Wait()

	if mode == config.UIModePlain {
		printSummary(printer, session.Status(), time.Since(started), componentErr)
	}
	return nil
}

// runDiscoverTUI shows the interactive list and stops the session when the
// user quits
func runDiscoverTUI(cmd *cobra.Command, session *discovery.Session, sink *tui.Sink) error {
	model := tui.NewModel(session.Envelope().Descriptor.Label(), sink, session.Status)
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)

	// Close the program when the session ends on its own
	go func() {
		<-session.Done()
		program.Quit()
	}()

	final, err := program.Run()
	session.Stop()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("interactive list failed: %w", err)
	}

	if m, ok := final.(tui.Model); ok {
		if peer, ok := m.Selected(); ok {
			printer := ui.NewPrinter(cmd.OutOrStdout())
			printer.PrintSuccess("Peer selected",
				ui.Param{Key: "Peer", Value: peer.Label},
				ui.Param{Key: "Address", Value: peer.Address.String()},
				ui.Param{Key: "Platform", Value: ui.PlatformSummary(peer)},
			)
		}
	}
	return nil
}

func discoverParams(cfg discovery.Config, settings *config.Settings) []ui.Param {
	targets := "255.255.255.255"
	if len(cfg.Targets) > 0 {
		parts := make([]string, len(cfg.Targets))
		for i, t := range cfg.Targets {
			parts[i] = t.String()
		}
		targets = strings.Join(parts, ", ")
	}

	params := []ui.Param{
		{Key: "Port", Value: strconv.Itoa(cfg.Port)},
		{Key: "Broadcast", Value: targets},
		{Key: "Interval", Value: cfg.Interval.String()},
	}
	if cfg.PeerTTL > 0 {
		params = append(params, ui.Param{Key: "Peer TTL", Value: cfg.PeerTTL.String()})
	}
	if cfg.MDNS {
		params = append(params, ui.Param{Key: "mDNS", Value: discovery.ServiceType})
	}
	if settings.Feed.Listen != "" {
		params = append(params, ui.Param{Key: "Feed", Value: settings.Feed.Listen})
	}
	return params
}

func printSummary(printer *ui.Printer, st discovery.Status, elapsed time.Duration, componentErr error) {
	details := []ui.Param{
		{Key: "Peers", Value: strconv.Itoa(st.Peers)},
		{Key: "Sent", Value: strconv.FormatUint(st.Sent, 10)},
		{Key: "Received", Value: strconv.FormatUint(st.Received, 10)},
		{Key: "Dropped", Value: strconv.FormatUint(st.Dropped, 10)},
		{Key: "Duration", Value: elapsed.Round(time.Second).String()},
	}

	if componentErr != nil {
		details = append(details, ui.Param{Key: "Error", Value: componentErr.Error()})
		printer.PrintWarning("Discovery stopped early", details...)
		return
	}
	printer.PrintSuccess("Discovery finished", details...)
}

// identityCmd prints what this host would announce
var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show the local announcement",
	Long: `Print the descriptor this host announces and the exact JSON payload
that is broadcast. Useful to check what other peers will see.`,
	RunE: runIdentity,
}

func init() {
	identityCmd.Flags().StringVar(&discover.name, "name", "", "Display name override")
	identityCmd.Flags().StringVar(&discover.bind, "bind", "", "Local address used to pick the advertised IP")
}

func runIdentity(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("name") {
		settings.Identity.DisplayName = discover.name
	}
	if cmd.Flags().Changed("bind") {
		settings.Discovery.Bind = discover.bind
	}

	cfg, err := settings.DiscoveryConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	desc, err := descriptor.NewSystem(settings.Identity.DisplayName).Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to read local identity: %w", err)
	}

	env := protocol.NewEnvelope(desc, descriptor.LocalIP(cfg.BindAddr))
	payload, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.PrintSuccess("Local identity",
		ui.Param{Key: "Label", Value: desc.Label()},
		ui.Param{Key: "User", Value: desc.UserName},
		ui.Param{Key: "Host", Value: desc.HostName},
		ui.Param{Key: "Platform", Value: strings.TrimSpace(desc.Platform + " " + desc.Distro)},
		ui.Param{Key: "Address", Value: env.SourceAddress.String()},
		ui.Param{Key: "Threads", Value: strconv.Itoa(env.ConcurrencyHint)},
	)

	var pretty map[string]any
	if err := json.Unmarshal(payload, &pretty); err == nil {
		if indented, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			payload = indented
		}
	}
	printer.Println(string(payload))
	return nil
}

// configCmd groups the config file subcommands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		printer := ui.NewPrinter(cmd.OutOrStdout())

		path, err := config.CreateDefaultConfig(configPath)
		if errors.Is(err, config.ErrConfigExists) {
			printer.PrintWarning("Config file already exists", ui.Param{Key: "Path", Value: path})
			return nil
		}
		if err != nil {
			printer.PrintError("Could not write config file", err, []string{
				"Check that the config directory is writable",
				"Or choose another location with --config",
			})
			return err
		}

		printer.PrintSuccess("Config file created", ui.Param{Key: "Path", Value: path})
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		settings, err := config.Load(configPath)
		if err != nil {
			return err
		}
		data, err := settings.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.GetConfigPath(); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}
