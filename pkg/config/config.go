// Package config loads the wallet's on-disk config.json and applies
// environment-variable overrides on top of it.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"orchardwallet/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the wallet's persisted configuration, stored at
// <data_dir>/config.json alongside the encrypted seed file.
type Config struct {
	NodeURL        string `json:"zebra_url"`
	Network        string `json:"network"`
	DataDir        string `json:"-"`
	ScanWindow     int    `json:"scan_window"`
	FeeZatFallback uint64 `json:"fee_zat_fallback"`
	LastScanHeight *uint32 `json:"last_scan_height"`
}

// Default values used when a config.json does not yet exist (fresh wallet).
const (
	DefaultNodeURL        = "127.0.0.1:8232"
	DefaultNetwork         = "main"
	DefaultScanWindow      = 1000
	DefaultFeeZatFallback  = 10000
)

// Defaults returns a Config populated with the module's defaults, with
// environment variables layered on top.
func Defaults(dataDir string) *Config {
	c := &Config{
		NodeURL:        DefaultNodeURL,
		Network:        DefaultNetwork,
		DataDir:        dataDir,
		ScanWindow:     DefaultScanWindow,
		FeeZatFallback: DefaultFeeZatFallback,
	}
	applyEnv(c)
	return c
}

// Load reads config.json from dataDir, applying environment overrides on
// top of whatever was persisted. If the file does not exist, Load returns
// the defaults (not an error) so a fresh data dir can bootstrap itself.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Defaults(dataDir), nil
	}
	if err != nil {
		return nil, utils.Wrap(err, "read config.json")
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, utils.Wrap(err, "parse config.json")
	}
	c.DataDir = dataDir
	if c.ScanWindow == 0 {
		c.ScanWindow = DefaultScanWindow
	}
	if c.FeeZatFallback == 0 {
		c.FeeZatFallback = DefaultFeeZatFallback
	}
	applyEnv(&c)
	return &c, nil
}

// Save atomically writes c to <c.DataDir>/config.json.
func (c *Config) Save() error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return utils.Wrap(err, "marshal config")
	}
	path := filepath.Join(c.DataDir, "config.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return utils.Wrap(err, "write config tmp")
	}
	if err := os.Rename(tmp, path); err != nil {
		return utils.Wrap(err, "rename config tmp")
	}
	return nil
}

func applyEnv(c *Config) {
	c.NodeURL = utils.EnvOrDefault("WALLET_NODE_URL", c.NodeURL)
	c.Network = utils.EnvOrDefault("WALLET_NETWORK", c.Network)
	c.ScanWindow = utils.EnvOrDefaultInt("WALLET_SCAN_WINDOW", c.ScanWindow)
}
