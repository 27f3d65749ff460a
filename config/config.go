// Package config loads and validates node configuration (§6).
package config

import (
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"time"

	"github.com/goccy/go-yaml"
)

// HealthCheckOption selects how the health checker picks its ping targets
// (§4.5).
type HealthCheckOption string

const (
	NeighborOfNeighbor HealthCheckOption = "neighbor_of_neighbor"
	Topology           HealthCheckOption = "topology"
	Random             HealthCheckOption = "random"
)

// PeerSpec names the publish and command endpoints of a peer to connect to
// at construction (§6 initial_peers).
type PeerSpec struct {
	Name        string `yaml:"name"`
	PublishAddr string `yaml:"publish_addr"`
	CommandAddr string `yaml:"command_addr"`
	PublicKey   string `yaml:"public_key,omitempty"`
}

// NodeConfig collects everything recognized at KvStore/HealthChecker
// construction time (§6).
type NodeConfig struct {
	NodeId   string `yaml:"node_id"`
	IpTos    *int   `yaml:"ip_tos,omitempty"`
	KeyPath  string `yaml:"keypair,omitempty"`
	Encrypt  bool   `yaml:"encrypt,omitempty"`

	LocalPublishAddr string `yaml:"local_publish_addr"`
	LocalCommandAddr string `yaml:"local_command_addr"`
	GlobalPublishAddr string `yaml:"global_publish_addr,omitempty"`
	GlobalCommandAddr string `yaml:"global_command_addr,omitempty"`

	DbSyncIntervalSec        int        `yaml:"db_sync_interval,omitempty"`
	MonitorSubmitIntervalSec int        `yaml:"monitor_submit_interval,omitempty"`
	InitialPeers             []PeerSpec `yaml:"initial_peers,omitempty"`

	HealthCheckOption  HealthCheckOption `yaml:"health_check_option,omitempty"`
	HealthCheckPct     float64           `yaml:"health_check_pct,omitempty"`
	UdpPingPort        uint16            `yaml:"udp_ping_port,omitempty"`
	PingIntervalSec    float64           `yaml:"ping_interval,omitempty"`
	HealthCommandAddr  string            `yaml:"health_command_addr,omitempty"`
	HealthPingBindAddr string            `yaml:"health_ping_bind_addr,omitempty"`

	LogPath string `yaml:"log_path,omitempty"`
}

const (
	DefaultDbSyncInterval        = time.Minute
	DefaultMonitorSubmitInterval = time.Second * 30
	DefaultUdpPingPort           = 57176
	DefaultPingInterval          = time.Second * 5
)

// DbSyncInterval returns the configured interval, or its default.
func (c *NodeConfig) DbSyncInterval() time.Duration {
	if c.DbSyncIntervalSec <= 0 {
		return DefaultDbSyncInterval
	}
	return time.Duration(c.DbSyncIntervalSec) * time.Second
}

func (c *NodeConfig) MonitorSubmitInterval() time.Duration {
	if c.MonitorSubmitIntervalSec <= 0 {
		return DefaultMonitorSubmitInterval
	}
	return time.Duration(c.MonitorSubmitIntervalSec) * time.Second
}

func (c *NodeConfig) PingInterval() time.Duration {
	if c.PingIntervalSec <= 0 {
		return DefaultPingInterval
	}
	return time.Duration(c.PingIntervalSec * float64(time.Second))
}

func (c *NodeConfig) PingPort() uint16 {
	if c.UdpPingPort == 0 {
		return DefaultUdpPingPort
	}
	return c.UdpPingPort
}

// PingBindAddr returns the address the health checker's ping socket binds
// to: the configured override, or an IPv6 wildcard on PingPort (§4.5:
// "a tiny two-message protocol over UDPv6").
func (c *NodeConfig) PingBindAddr() string {
	if c.HealthPingBindAddr != "" {
		return c.HealthPingBindAddr
	}
	return fmt.Sprintf("[::]:%d", c.PingPort())
}

// Load reads and parses a YAML node configuration file.
func Load(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

var namePattern = regexp.MustCompile("^[0-9a-zA-Z._-]+$")

// Validate rejects configuration errors that must be fatal at construction
// (§6, §7 Configuration taxonomy).
func Validate(c *NodeConfig) error {
	if c.NodeId == "" {
		return fmt.Errorf("node_id is required")
	}
	if !namePattern.MatchString(c.NodeId) {
		return fmt.Errorf("node_id %q is not a valid name", c.NodeId)
	}
	if _, err := netip.ParseAddrPort(c.LocalPublishAddr); err != nil {
		return fmt.Errorf("local_publish_addr: %w", err)
	}
	if _, err := netip.ParseAddrPort(c.LocalCommandAddr); err != nil {
		return fmt.Errorf("local_command_addr: %w", err)
	}
	if c.HealthCheckPct > 100 {
		return fmt.Errorf("health_check_pct must be <= 100, got %v", c.HealthCheckPct)
	}
	if c.HealthCheckPct < 0 {
		return fmt.Errorf("health_check_pct must be >= 0, got %v", c.HealthCheckPct)
	}
	switch c.HealthCheckOption {
	case "", NeighborOfNeighbor, Topology, Random:
	default:
		return fmt.Errorf("unknown health_check_option %q", c.HealthCheckOption)
	}
	if c.HealthCommandAddr != "" {
		if _, err := netip.ParseAddrPort(c.HealthCommandAddr); err != nil {
			return fmt.Errorf("health_command_addr: %w", err)
		}
	}
	seen := make(map[string]bool)
	for _, p := range c.InitialPeers {
		if p.Name == "" {
			return fmt.Errorf("initial_peers entry missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate peer entry: %s", p.Name)
		}
		seen[p.Name] = true
		if _, err := netip.ParseAddrPort(p.PublishAddr); err != nil {
			return fmt.Errorf("peer %s publish_addr: %w", p.Name, err)
		}
		if _, err := netip.ParseAddrPort(p.CommandAddr); err != nil {
			return fmt.Errorf("peer %s command_addr: %w", p.Name, err)
		}
	}
	return nil
}
