package main

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/ferret/pkg/config"
	"github.com/cuemby/ferret/pkg/log"
	"github.com/cuemby/ferret/pkg/metrics"
	"github.com/cuemby/ferret/pkg/scan"
	"github.com/cuemby/ferret/pkg/sink"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and maps errors to the documented exit behaviour:
// user errors print with an [E] prefix and exit 0, descriptor exhaustion
// and poller failures exit 1.
func run(args []string) int {
	// a dash-prefixed target must be rejected as user error before the
	// flag parser can mistake it for a shorthand cluster
	if err := rejectDashTargets(args); err != nil {
		fmt.Printf("[E] %s\n", err)
		return 0
	}

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			fmt.Printf("[E] %s\n", cfgErr)
			return 0
		}
		if errors.Is(err, scan.ErrFdExhausted) {
			fmt.Printf("[E] Failed to create socket. %s\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// rejectDashTargets scans the raw argument list for dash-prefixed tokens
// that are not recognised flags.  The flag parser would otherwise fail on
// them with a usage error and exit 1; they are mistyped targets and get
// the user-error treatment instead.
func rejectDashTargets(args []string) error {
	seenSep := false
	for _, a := range args {
		if !seenSep && a == "--" {
			seenSep = true
			continue
		}
		if !strings.HasPrefix(a, "-") || a == "-" {
			continue
		}
		if seenSep || !knownFlagToken(a) {
			return config.Errorf("target %q starts with - which is interpreted as an option", a)
		}
	}
	return nil
}

// knownFlagToken reports whether a dash-prefixed token names a registered
// flag (long name, or shorthand possibly clustered with its value)
func knownFlagToken(a string) bool {
	name := strings.TrimPrefix(a, "-")
	long := strings.HasPrefix(name, "-")
	if long {
		name = strings.TrimPrefix(name, "-")
	}
	if i := strings.IndexByte(name, '='); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return false
	}
	if long {
		if name == "help" || name == "version" {
			return true
		}
		return rootCmd.Flags().Lookup(name) != nil || rootCmd.PersistentFlags().Lookup(name) != nil
	}
	short := name[:1]
	// help and version flags are registered by cobra at execute time
	if short == "h" || short == "v" {
		return true
	}
	return rootCmd.Flags().ShorthandLookup(short) != nil
}

var rootCmd = &cobra.Command{
	Use:   "ferret [flags] [targets]",
	Short: "Ferret - high-throughput TCP connect scanner",
	Long: `Ferret probes large address and port spaces with non-blocking TCP
connects at a controlled send rate, classifying each socket outcome as
open, closed or filtered while holding bandwidth, packet-rate, per-host
pacing and concurrent-socket limits simultaneously.

Targets are dotted quads, dashed ranges (10.0.0.1-10.0.0.9) or CIDR
blocks (10.0.0.0/24), given as arguments or one per line in a file.`,
	Example: `  ferret -f ips.txt
  ferret -p 80,443,8000-9000 10.0.0.0/16 192.168.0.1`,
	Version:       Version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScan,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Ferret version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().StringP("file", "f", "", "File of targets, one per line, # comments")
	rootCmd.Flags().StringP("ports", "p", config.DefaultPortSpec, "Port list (e.g. 80,443,1000-2000) or \"all\"")
	rootCmd.Flags().StringP("bandwidth", "b", config.DefaultBandwidth, "Bandwidth in bits/sec, k/m/g suffixes accepted")
	rootCmd.Flags().StringP("packetrate", "P", config.DefaultPacketRate, "Max packets/sec to send, 0 = unlimited")
	rootCmd.Flags().Float64P("rtt", "R", config.DefaultRTT, "Max round trip time per probe in seconds")
	rootCmd.Flags().StringP("max", "m", config.DefaultMaxSockets, "Max parallel probes, or \"auto\"")
	rootCmd.Flags().IntP("retries", "r", config.DefaultRetries, "Retries per port (total probes = retries+1)")
	rootCmd.Flags().StringP("polltype", "t", config.DefaultPoller, "Poll type: poll, epoll, select or auto")
	rootCmd.Flags().BoolP("closed", "c", false, "Show closed ports too")
	rootCmd.Flags().StringSliceP("blocklist", "B", nil, "Comma-separated IPs that must never be probed")
	rootCmd.Flags().BoolP("debug", "d", false, "Record observed replies to "+sink.DefaultDebugLogPath)
	rootCmd.Flags().String("profile", "", "YAML scan profile; explicit flags override its values")
	rootCmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9477)")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// buildConfig merges the optional profile with the command line; a flag
// set explicitly always wins over the profile value.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := &config.Config{}
	if path, _ := cmd.Flags().GetString("profile"); path != "" {
		loaded, err := config.LoadProfile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flagged := func(name string) bool { return cmd.Flags().Changed(name) }

	if v, _ := cmd.Flags().GetString("file"); flagged("file") || cfg.TargetsFile == "" {
		cfg.TargetsFile = v
	}
	if len(args) > 0 {
		cfg.Targets = args
	}
	if v, _ := cmd.Flags().GetString("ports"); flagged("ports") || cfg.PortSpec == "" {
		cfg.PortSpec = v
	}
	if v, _ := cmd.Flags().GetString("bandwidth"); flagged("bandwidth") || cfg.Bandwidth == "" {
		cfg.Bandwidth = v
	}
	if v, _ := cmd.Flags().GetString("packetrate"); flagged("packetrate") || cfg.PacketRate == "" {
		cfg.PacketRate = v
	}
	if v, _ := cmd.Flags().GetFloat64("rtt"); flagged("rtt") || cfg.RTT == 0 {
		cfg.RTT = v
	}
	if v, _ := cmd.Flags().GetString("max"); flagged("max") || cfg.MaxSockets == "" {
		cfg.MaxSockets = v
	}
	if v, _ := cmd.Flags().GetInt("retries"); flagged("retries") || cfg.Retries == 0 {
		cfg.Retries = v
	}
	if v, _ := cmd.Flags().GetString("polltype"); flagged("polltype") || cfg.Poller == "" {
		cfg.Poller = v
	}
	if v, _ := cmd.Flags().GetBool("closed"); flagged("closed") {
		cfg.ShowClosed = v
	}
	if v, _ := cmd.Flags().GetStringSlice("blocklist"); flagged("blocklist") {
		cfg.Blocklist = v
	}
	if v, _ := cmd.Flags().GetBool("debug"); flagged("debug") {
		cfg.Debug = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); flagged("metrics-addr") {
		cfg.MetricsAddr = v
	}
	return cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if cfg.TargetsFile == "" && len(cfg.Targets) == 0 {
		return cmd.Help()
	}

	sinks := sink.Multi{sink.NewConsole(os.Stdout)}
	var debugLog *sink.DebugLog
	if cfg.Debug {
		debugLog = sink.NewDebugLog("")
		sinks = append(sinks, debugLog)
	}

	// every outcome is also published through the broker; the CLI's own
	// subscriber surfaces the stream as structured debug logs, and an
	// embedding program can subscribe the same way
	broker := sink.NewBroker()
	sinks = append(sinks, broker)
	events := broker.Subscribe()
	eventsDone := make(chan struct{})
	go logEvents(events, eventsDone)
	defer func() {
		broker.Unsubscribe(events)
		<-eventsDone
	}()

	scanner, err := scan.New(*cfg, sinks)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger := log.WithComponent("metrics")
				logger.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	fmt.Printf("Starting ferret v%s (scan %s) at %s\n", Version, scanner.ScanID, wallClock())
	scanner.Dump(os.Stdout)

	stats, err := scanner.Run()
	if err != nil {
		if debugLog != nil {
			debugLog.Flush()
		}
		return err
	}
	if debugLog != nil {
		if err := debugLog.Flush(); err != nil {
			logger := log.WithComponent("sink")
			logger.Error().Err(err).Msg("Failed to write debug log")
		}
	}

	fmt.Println()
	fmt.Printf("Scan complete at %s\n", wallClock())
	fmt.Printf("Found: %d open ports and received %d RSTs\n", stats.Replies, stats.Resets)
	seconds := stats.Duration.Seconds()
	fmt.Printf("Sent %d bytes (%d bits) in %d probes in %ss to %d hosts: %d bits/s, %s bytes/s, %s packets/s\n",
		stats.BytesSent, stats.BytesSent*8, stats.ProbesSent,
		roundPretty(seconds), stats.HostCount, stats.RateBitsPerS,
		roundPretty(float64(stats.BytesSent)/seconds),
		roundPretty(float64(stats.ProbesSent)/seconds))
	return nil
}

// logEvents drains a broker subscription into structured debug logs until
// the subscription closes
func logEvents(events sink.Subscriber, done chan<- struct{}) {
	defer close(done)
	evLog := log.WithComponent("events")
	for ev := range events {
		e := evLog.Debug().Str("type", string(ev.Type)).Time("at", ev.Timestamp)
		if ev.Addr.IsValid() {
			e = e.Str("addr", ev.Addr.String()).Uint16("port", ev.Port)
		}
		if ev.Message != "" {
			e = e.Str("message", ev.Message)
		}
		e.Msg("Scan event")
	}
}

// wallClock formats the banner timestamp with its UTC offset
func wallClock() string {
	now := time.Now()
	_, offset := now.Zone()
	hours := offset / 3600
	sign := ""
	if hours > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s UTC%s%d", now.Format("2006-01-02 15:04:05"), sign, hours)
}

// roundPretty renders x with three significant figures below 100 and as an
// integer above, matching the scan summary's traditional look.
func roundPretty(x float64) string {
	if x < 0.01 {
		x = 0.01
	}
	if x <= 100 {
		digits := 2 - int(math.Floor(math.Log10(math.Abs(x))))
		return fmt.Sprintf("%.*f", digits, x)
	}
	return fmt.Sprintf("%d", int64(x))
}
