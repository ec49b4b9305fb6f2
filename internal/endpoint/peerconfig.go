package endpoint

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/gaspardpetit/editorbridge/internal/logx"
)

var localWSURL = regexp.MustCompile(`(wss?://(?:localhost|127\.0\.0\.1):)(\d{1,5})`)

// PeerConfig rewrites the server URL inside configuration files owned by
// peers, such as a desktop assistant's MCP server list, when the port moves.
type PeerConfig struct {
	paths []string
	ports map[int]bool
	now   func() time.Time
}

// NewPeerConfig returns a rewriter for paths. Only URLs whose port is in
// ports are rewritten.
func NewPeerConfig(paths []string, ports []int) *PeerConfig {
	set := make(map[int]bool, len(ports))
	for _, p := range ports {
		set[p] = true
	}
	return &PeerConfig{paths: paths, ports: set, now: time.Now}
}

// OnPortChanged rewrites every file and logs the outcome. Errors are
// reported, never returned: a peer file is optional.
func (p *PeerConfig) OnPortChanged(port int) {
	for _, path := range p.paths {
		changed, err := p.RewriteFile(path, port)
		var cerr *ConfigError
		switch {
		case errors.As(err, &cerr) && errors.Is(err, os.ErrNotExist):
			logx.Log.Debug().Str("path", path).Msg("peer config not present")
		case err != nil:
			logx.Log.Warn().Err(err).Str("path", path).Msg("peer config not updated")
		case changed:
			logx.Log.Info().Str("path", path).Int("port", port).Msg("peer config updated")
		}
	}
}

// RewriteFile points matching URLs in path at port. A timestamped backup
// of the original is written first. It reports whether the file changed.
func (p *PeerConfig) RewriteFile(path string, port int) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, &ConfigError{Path: path, Op: "stat", Err: err}
	}
	orig, err := os.ReadFile(path)
	if err != nil {
		return false, &ConfigError{Path: path, Op: "read", Err: err}
	}
	if !json.Valid(jsonc.ToJSON(orig)) {
		return false, &ConfigError{Path: path, Op: "parse", Err: errors.New("not a JSON document")}
	}

	target := strconv.Itoa(port)
	changed := false
	out := localWSURL.ReplaceAllFunc(orig, func(m []byte) []byte {
		sub := localWSURL.FindSubmatch(m)
		old, err := strconv.Atoi(string(sub[2]))
		if err != nil || !p.ports[old] || old == port {
			return m
		}
		changed = true
		return append(append([]byte(nil), sub[1]...), target...)
	})
	if !changed {
		return false, nil
	}

	backup := path + ".backup_" + p.now().Format("20060102_150405")
	if err := os.WriteFile(backup, orig, info.Mode().Perm()); err != nil {
		return false, &ConfigError{Path: backup, Op: "backup", Err: err}
	}
	if err := writeAtomic(path, out, info.Mode().Perm()); err != nil {
		return false, &ConfigError{Path: path, Op: "write", Err: err}
	}
	return true, nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".peer-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
