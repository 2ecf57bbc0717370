package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Error is a user-facing configuration error.  The CLI prints it with an
// [E] prefix and exits with status 0: a bad flag is user error, not a crash.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

// Errorf creates a new configuration Error
func Errorf(format string, args ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Config holds every knob of a scan.  Empty string fields and a zero RTT
// mean "use the default"; ApplyDefaults resolves them before the scanner
// sees the config.  Retries, the booleans and the lists are used as given,
// so a zero Retries means no retries.
type Config struct {
	// Targets are positional target tokens (ip, dashed range, or CIDR)
	Targets []string `yaml:"targets,omitempty"`

	// TargetsFile names a file with one target token per line
	TargetsFile string `yaml:"targets_file,omitempty"`

	// PortSpec is a comma/range port list, or "all"
	PortSpec string `yaml:"ports,omitempty"`

	// Bandwidth is the send budget in bits/second (k/m/g suffixes accepted)
	Bandwidth string `yaml:"bandwidth,omitempty"`

	// PacketRate caps global packets/second; 0 means unlimited
	PacketRate string `yaml:"packet_rate,omitempty"`

	// RTT is the per-host interval in seconds
	RTT float64 `yaml:"rtt,omitempty"`

	// MaxSockets bounds concurrent sockets; "auto" derives it from the
	// bandwidth and RTT
	MaxSockets string `yaml:"max_sockets,omitempty"`

	// Retries is the number of re-sends per target (total probes = Retries+1)
	Retries int `yaml:"retries"`

	// Poller selects the readiness backend: poll, epoll, select or auto
	Poller string `yaml:"poller,omitempty"`

	// ShowClosed reports RST results as well as SYN/ACK
	ShowClosed bool `yaml:"show_closed,omitempty"`

	// Blocklist lists IPs that must never be probed
	Blocklist []string `yaml:"blocklist,omitempty"`

	// Debug appends observed replies to the debug reply log
	Debug bool `yaml:"debug,omitempty"`

	// MetricsAddr serves prometheus metrics when non-empty
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Defaults mirrored by the CLI flag help text
const (
	DefaultPortSpec   = "1-65535"
	DefaultBandwidth  = "250k"
	DefaultPacketRate = "0"
	DefaultRTT        = 0.5
	DefaultMaxSockets = "auto"
	DefaultRetries    = 1
	DefaultPoller     = "auto"
)

// ApplyDefaults fills unset fields with the documented defaults
func (c *Config) ApplyDefaults() {
	if c.PortSpec == "" {
		c.PortSpec = DefaultPortSpec
	}
	if c.Bandwidth == "" {
		c.Bandwidth = DefaultBandwidth
	}
	if c.PacketRate == "" {
		c.PacketRate = DefaultPacketRate
	}
	if c.RTT == 0 {
		c.RTT = DefaultRTT
	}
	if c.MaxSockets == "" {
		c.MaxSockets = DefaultMaxSockets
	}
	if c.Poller == "" {
		c.Poller = DefaultPoller
	}
}

// Validate checks cross-field constraints that the flag parser cannot
func (c *Config) Validate() error {
	if c.TargetsFile != "" && len(c.Targets) > 0 {
		return Errorf("you cannot specify both a file of targets and a list of targets")
	}
	if c.TargetsFile == "" && len(c.Targets) == 0 {
		return Errorf("no targets specified")
	}
	for _, t := range c.Targets {
		// a target starting with "-" was almost certainly meant as an option
		if strings.HasPrefix(t, "-") {
			return Errorf("target %q starts with - which is interpreted as an option", t)
		}
	}
	if c.Retries < 0 {
		return Errorf("retries must be >= 0")
	}
	if c.MaxSockets != "auto" {
		n, err := strconv.Atoi(c.MaxSockets)
		if err != nil || n < 1 {
			return Errorf("max sockets must be > 0 or \"auto\"")
		}
	}
	return nil
}

// PerHostInterval returns the RTT as a duration
func (c *Config) PerHostInterval() time.Duration {
	return time.Duration(c.RTT * float64(time.Second))
}

// LoadProfile reads a YAML scan profile into a Config.  Flags set
// explicitly on the command line override profile values; the CLI handles
// that merge.
func LoadProfile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &cfg, nil
}

// ExpandNumber converts a string like 250k, 1m or 1g to its integer value
func ExpandNumber(s string) (int64, error) {
	mult := int64(1)
	num := s
	switch {
	case strings.HasSuffix(strings.ToLower(s), "k"):
		mult, num = 1000, s[:len(s)-1]
	case strings.HasSuffix(strings.ToLower(s), "m"):
		mult, num = 1000000, s[:len(s)-1]
	case strings.HasSuffix(strings.ToLower(s), "g"):
		mult, num = 1000000000, s[:len(s)-1]
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, Errorf("%s should be an integer or an integer with k, m or g suffix", s)
	}
	return n * mult, nil
}
