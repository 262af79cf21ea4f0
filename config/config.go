// Package config loads and hot-reloads the BSC NAT's YAML configuration.
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// BSCEntry is a statically configured downstream BSC allowed to connect.
// ListenAddr is the BSC's own source address — the host a connection must
// arrive from to be identified as this BSC (spec §6's BSC allowlist).
type BSCEntry struct {
	Name       string `yaml:"name"`
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the NAT's configuration surface, per spec §6/§6.E.
type Config struct {
	MaxEndpoints   int        `yaml:"max_endpoints"`
	SourceAddr     string     `yaml:"source_addr"`
	SourcePort     int        `yaml:"source_port"`
	CallAgentAddr  string     `yaml:"call_agent_addr"`
	MGCPIPA        bool       `yaml:"mgcp_ipa"`
	BtsIP          string     `yaml:"bts_ip"` // must stay empty in NAT mode (spec §6)
	BSCListenAddr  string     `yaml:"bsc_listen_addr"`
	RTPBaseNetPort int        `yaml:"rtp_base_net_port"`
	RTPBaseBtsPort int        `yaml:"rtp_base_bts_port"`
	BSCs           []BSCEntry `yaml:"bscs"`
	StatusAddr     string     `yaml:"status_addr"`
	AuditLogPath   string     `yaml:"audit_log_path"`
	AuditRetention int        `yaml:"audit_retention_days"`
}

// Validate enforces the config-error invariants from spec §7: a missing
// call agent address or a non-empty bts_ip-equivalent are fatal at init.
func (c *Config) Validate() error {
	if c.CallAgentAddr == "" {
		return fmt.Errorf("call_agent_addr must be set")
	}
	if c.MaxEndpoints <= 0 {
		return fmt.Errorf("max_endpoints must be positive")
	}
	if c.BtsIP != "" {
		return fmt.Errorf("bts_ip must be empty in NAT mode")
	}
	for _, entry := range c.BSCs {
		if entry.Name == "" {
			return fmt.Errorf("every bsc entry must have a name")
		}
		if entry.ListenAddr == "" {
			return fmt.Errorf("bsc %q must have a listen_addr so inbound connections can be identified", entry.Name)
		}
	}
	return nil
}

func defaults() *Config {
	return &Config{
		MaxEndpoints:   32,
		SourcePort:     2727,
		AuditRetention: 30,
		RTPBaseNetPort: 16000,
		RTPBaseBtsPort: 26000,
	}
}

// Load reads and validates the YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Store holds the live config and the subset of fields that are safe to
// swap in without restarting the process: the BSC allowlist. mgcp_ipa,
// max_endpoints, and the socket addresses require a restart since the
// sockets and trunk are already sized and bound around them.
type Store struct {
	mu  sync.RWMutex
	cur *Config
}

func NewStore(initial *Config) *Store {
	return &Store{cur: initial}
}

func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// ReloadBSCs swaps in a freshly loaded config's BSC allowlist, leaving
// everything else (and the running sockets/trunk) untouched.
func (s *Store) ReloadBSCs(path string) ([]BSCEntry, error) {
	fresh, err := Load(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.BSCs = fresh.BSCs
	return s.cur.BSCs, nil
}
