package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var env = os.Getenv

// GetEnv returns the environment value for k, or d when unset or empty.
func GetEnv(k, d string) string {
	if v := env(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	if v, err := strconv.Atoi(GetEnv(k, "")); err == nil {
		return v
	}
	return d
}

func envDuration(k string, d time.Duration) time.Duration {
	if v, err := time.ParseDuration(GetEnv(k, "")); err == nil {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	if v, err := strconv.ParseBool(GetEnv(k, "")); err == nil {
		return v
	}
	return d
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// csvValue is a flag.Value for comma separated lists.
type csvValue struct{ dst *[]string }

func (c csvValue) String() string {
	if c.dst == nil {
		return ""
	}
	return strings.Join(*c.dst, ",")
}

func (c csvValue) Set(v string) error {
	*c.dst = splitComma(v)
	return nil
}

// ParsePortRange parses "8080-8089", "8080,8081" or a mix of both.
func ParsePortRange(s string) ([]int, error) {
	var ports []int
	for _, part := range splitComma(s) {
		lo, hi, found := strings.Cut(part, "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("port range %q: %w", part, err)
		}
		b := a
		if found {
			if b, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("port range %q: %w", part, err)
			}
		}
		if a < 1 || b > 65535 || a > b {
			return nil, fmt.Errorf("port range %q out of bounds", part)
		}
		for p := a; p <= b; p++ {
			ports = append(ports, p)
		}
	}
	return ports, nil
}

// DefaultDataDir returns the per-user directory holding bridge state.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return resolveDataDir(runtime.GOOS, home, os.Getenv("APPDATA"))
}

func resolveDataDir(goos, home, appData string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "editorbridge")
	case "windows":
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		appData = strings.TrimRight(appData, "\\/")
		return filepath.Join(appData, "editorbridge")
	default:
		return filepath.Join(home, ".config", "editorbridge")
	}
}

// DefaultPeerConfigPath returns where the desktop assistant keeps its MCP
// server configuration on the given OS.
func DefaultPeerConfigPath() string {
	home, _ := os.UserHomeDir()
	return resolvePeerConfigPath(runtime.GOOS, home, os.Getenv("APPDATA"))
}

func resolvePeerConfigPath(goos, home, appData string) string {
	const name = "claude_desktop_config.json"
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", name)
	case "windows":
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		appData = strings.TrimRight(appData, "\\/")
		return filepath.Join(appData, "Claude", name)
	default:
		return filepath.Join(home, ".config", "Claude", name)
	}
}
