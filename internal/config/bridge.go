package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ExecutorConfig selects how operations reach the host.
type ExecutorConfig struct {
	// Kind is one of "mcp-stdio", "mcp-http", "http" or "none".
	Kind       string   `yaml:"kind"`
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	URL        string   `yaml:"url"`
	ToolPrefix string   `yaml:"tool_prefix"`
	// Serialize runs every operation on one goroutine, in arrival order.
	// On by default; disable only for executors safe for concurrent calls.
	Serialize bool          `yaml:"serialize"`
	Timeout   time.Duration `yaml:"timeout"`
}

// BridgeConfig holds configuration for the editor bridge.
type BridgeConfig struct {
	ServerHost string `yaml:"server_host"`
	ServerPort int    `yaml:"server_port"`
	ServerPath string `yaml:"server_path"`
	Secure     bool   `yaml:"secure"`
	ClientType string `yaml:"client_type"`
	ScanPorts  string `yaml:"scan_ports"`

	PeerConfigFiles []string `yaml:"peer_config_files"`
	PeerPorts       string   `yaml:"peer_ports"`
	StateStore      string   `yaml:"state_store"`

	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
	DormantInterval       time.Duration `yaml:"dormant_interval"`
	ProbeInterval         time.Duration `yaml:"probe_interval"`
	FullReconnectInterval time.Duration `yaml:"full_reconnect_interval"`
	BackoffInterval       time.Duration `yaml:"backoff_interval"`
	TickInterval          time.Duration `yaml:"tick_interval"`
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	ProbeTimeout          time.Duration `yaml:"probe_timeout"`

	Executor        ExecutorConfig    `yaml:"executor"`
	Aliases         map[string]string `yaml:"aliases"`
	FailurePrefixes []string          `yaml:"failure_prefixes"`

	StatusAddr  string `yaml:"status_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	TokenFile   string `yaml:"token_file"`
	HostPID     int    `yaml:"host_pid"`
	Signals     bool   `yaml:"signals"`
	ConfigFile  string `yaml:"-"`
	LogLevel    string `yaml:"log_level"`
}

// Defaults fills c with the built-in defaults, ignoring the environment.
func (c *BridgeConfig) Defaults() {
	dataDir := DefaultDataDir()
	c.ServerHost = "localhost"
	c.ServerPort = 8080
	c.ClientType = "unity"
	c.ScanPorts = "8080-8089"
	c.PeerConfigFiles = []string{DefaultPeerConfigPath()}
	c.PeerPorts = "8080-8089"
	c.StateStore = "file://" + filepath.ToSlash(filepath.Join(dataDir, "state.yaml"))
	c.MaxReconnectAttempts = 5
	c.DormantInterval = 2 * time.Second
	c.ProbeInterval = 5 * time.Second
	c.FullReconnectInterval = 10 * time.Second
	c.BackoffInterval = 10 * time.Second
	c.TickInterval = 100 * time.Millisecond
	c.HeartbeatInterval = 30 * time.Second
	c.ConnectTimeout = 10 * time.Second
	c.ProbeTimeout = 500 * time.Millisecond
	c.Executor = ExecutorConfig{Kind: "none", ToolPrefix: "unity_", Serialize: true, Timeout: 5 * time.Minute}
	c.FailurePrefixes = []string{"Error:", "Failed:"}
	c.TokenFile = filepath.Join(dataDir, "control.token")
	c.Signals = true
	c.ConfigFile = filepath.Join(dataDir, "bridge.yaml")
	c.LogLevel = "info"
}

// BindFlags applies defaults, overlays environment variables and registers
// command line flags on the default flag set.
func (c *BridgeConfig) BindFlags() {
	c.BindFlagSet(flag.CommandLine)
}

// BindFlagSet is BindFlags for an explicit flag set.
func (c *BridgeConfig) BindFlagSet(fs *flag.FlagSet) {
	c.Defaults()
	c.ConfigFile = GetEnv("CONFIG_FILE", c.ConfigFile)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	c.ServerHost = GetEnv("SERVER_HOST", c.ServerHost)
	c.ServerPort = envInt("SERVER_PORT", c.ServerPort)
	c.ServerPath = GetEnv("SERVER_PATH", c.ServerPath)
	c.Secure = envBool("SERVER_SECURE", c.Secure)
	c.ClientType = GetEnv("CLIENT_TYPE", c.ClientType)
	c.ScanPorts = GetEnv("SCAN_PORTS", c.ScanPorts)
	if v := GetEnv("PEER_CONFIG_FILES", ""); v != "" {
		c.PeerConfigFiles = splitComma(v)
	}
	c.PeerPorts = GetEnv("PEER_PORTS", c.PeerPorts)
	c.StateStore = GetEnv("STATE_STORE", c.StateStore)
	c.MaxReconnectAttempts = envInt("MAX_RECONNECT_ATTEMPTS", c.MaxReconnectAttempts)
	c.DormantInterval = envDuration("DORMANT_INTERVAL", c.DormantInterval)
	c.ProbeInterval = envDuration("PROBE_INTERVAL", c.ProbeInterval)
	c.FullReconnectInterval = envDuration("FULL_RECONNECT_INTERVAL", c.FullReconnectInterval)
	c.BackoffInterval = envDuration("BACKOFF_INTERVAL", c.BackoffInterval)
	c.TickInterval = envDuration("TICK_INTERVAL", c.TickInterval)
	c.HeartbeatInterval = envDuration("HEARTBEAT_INTERVAL", c.HeartbeatInterval)
	c.ConnectTimeout = envDuration("CONNECT_TIMEOUT", c.ConnectTimeout)
	c.ProbeTimeout = envDuration("PROBE_TIMEOUT", c.ProbeTimeout)
	c.Executor.Kind = GetEnv("EXECUTOR", c.Executor.Kind)
	c.Executor.Command = GetEnv("EXECUTOR_COMMAND", c.Executor.Command)
	if v := GetEnv("EXECUTOR_ARGS", ""); v != "" {
		c.Executor.Args = splitComma(v)
	}
	c.Executor.URL = GetEnv("EXECUTOR_URL", c.Executor.URL)
	c.Executor.ToolPrefix = GetEnv("EXECUTOR_TOOL_PREFIX", c.Executor.ToolPrefix)
	c.Executor.Serialize = envBool("EXECUTOR_SERIALIZE", c.Executor.Serialize)
	c.Executor.Timeout = envDuration("OPERATION_TIMEOUT", c.Executor.Timeout)
	c.StatusAddr = GetEnv("STATUS_ADDR", c.StatusAddr)
	c.MetricsAddr = GetEnv("METRICS_ADDR", c.MetricsAddr)
	c.TokenFile = GetEnv("TOKEN_FILE", c.TokenFile)
	c.HostPID = envInt("HOST_PID", c.HostPID)
	c.Signals = envBool("SIGNALS", c.Signals)

	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "bridge config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.ServerHost, "server-host", c.ServerHost, "automation server host")
	fs.IntVar(&c.ServerPort, "server-port", c.ServerPort, "well-known automation server port")
	fs.StringVar(&c.ServerPath, "server-path", c.ServerPath, "websocket path on the automation server")
	fs.BoolVar(&c.Secure, "secure", c.Secure, "connect with wss://")
	fs.StringVar(&c.ClientType, "client-type", c.ClientType, "value of the x-client-type handshake header")
	fs.StringVar(&c.ScanPorts, "scan-ports", c.ScanPorts, "ports probed when neither the last good nor the well-known port is live (e.g. 8080-8089; empty disables)")
	fs.Var(csvValue{&c.PeerConfigFiles}, "peer-config", "comma separated peer config files rewritten when the port changes")
	fs.StringVar(&c.PeerPorts, "peer-ports", c.PeerPorts, "ports recognised in peer config URLs")
	fs.StringVar(&c.StateStore, "state-store", c.StateStore, "state store URL (memory://, file:///path, redis://host:port/db)")
	fs.IntVar(&c.MaxReconnectAttempts, "max-reconnect-attempts", c.MaxReconnectAttempts, "consecutive failures before reporting max attempts reached")
	fs.DurationVar(&c.DormantInterval, "dormant-interval", c.DormantInterval, "wait after a loss before the first probe")
	fs.DurationVar(&c.ProbeInterval, "probe-interval", c.ProbeInterval, "wait after a probe before a full reconnect")
	fs.DurationVar(&c.FullReconnectInterval, "full-reconnect-interval", c.FullReconnectInterval, "wait after a full reconnect before retrying")
	fs.DurationVar(&c.BackoffInterval, "backoff-interval", c.BackoffInterval, "wait after a retry before probing again")
	fs.DurationVar(&c.TickInterval, "tick-interval", c.TickInterval, "scheduler tick")
	fs.DurationVar(&c.HeartbeatInterval, "heartbeat-interval", c.HeartbeatInterval, "heartbeat period while connected")
	fs.DurationVar(&c.ConnectTimeout, "connect-timeout", c.ConnectTimeout, "websocket handshake timeout")
	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", c.ProbeTimeout, "TCP reachability probe timeout")
	fs.StringVar(&c.Executor.Kind, "executor", c.Executor.Kind, "operation executor (mcp-stdio, mcp-http, http, none)")
	fs.StringVar(&c.Executor.Command, "executor-command", c.Executor.Command, "command started by the mcp-stdio executor")
	fs.Var(csvValue{&c.Executor.Args}, "executor-args", "comma separated arguments for executor-command")
	fs.StringVar(&c.Executor.URL, "executor-url", c.Executor.URL, "URL used by the mcp-http and http executors")
	fs.StringVar(&c.Executor.ToolPrefix, "executor-tool-prefix", c.Executor.ToolPrefix, "prefix added to MCP tool names")
	fs.BoolVar(&c.Executor.Serialize, "executor-serialize", c.Executor.Serialize, "run operations one at a time on a single goroutine (disable only for executors safe for concurrent calls)")
	fs.DurationVar(&c.Executor.Timeout, "operation-timeout", c.Executor.Timeout, "maximum duration of one operation (0 disables)")
	fs.StringVar(&c.StatusAddr, "status-addr", c.StatusAddr, "status and control HTTP listen address (disabled when empty; e.g. 127.0.0.1:4556)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus metrics listen address (disabled when empty)")
	fs.StringVar(&c.TokenFile, "token-file", c.TokenFile, "file holding the control API token")
	fs.IntVar(&c.HostPID, "host-pid", c.HostPID, "shut down when this process exits (0 disables)")
	fs.BoolVar(&c.Signals, "signals", c.Signals, "map OS signals to lifecycle events")
}

// LoadFile populates the config from a YAML file. Fields absent from the file
// keep their current values.
func (c *BridgeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate reports configuration that cannot work.
func (c *BridgeConfig) Validate() error {
	var errs []error
	if c.ServerHost == "" {
		errs = append(errs, errors.New("server host is empty"))
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.ServerPort))
	}
	if c.MaxReconnectAttempts < 1 {
		errs = append(errs, errors.New("max reconnect attempts must be positive"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}
	if _, err := ParsePortRange(c.ScanPorts); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParsePortRange(c.PeerPorts); err != nil {
		errs = append(errs, err)
	}
	switch c.Executor.Kind {
	case "none", "":
	case "mcp-stdio":
		if c.Executor.Command == "" {
			errs = append(errs, errors.New("mcp-stdio executor needs a command"))
		}
	case "mcp-http", "http":
		if c.Executor.URL == "" {
			errs = append(errs, fmt.Errorf("%s executor needs a url", c.Executor.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown executor %q", c.Executor.Kind))
	}
	return errors.Join(errs...)
}
