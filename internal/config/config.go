// Package config centralizes environment-driven configuration, following
// the teacher repository's use of github.com/caarlos0/env for struct-tag
// driven env parsing.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"

	"github.com/slavakukuyev/elevator-fleet/internal/constants"
)

// Config holds every tunable of a single node.
type Config struct {
	// Identity
	NodeName string `env:"NODE_NAME"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	// Fleet-wide layout; must be identical on every node (spec §6).
	FloorCount int `env:"FLOOR_COUNT" envDefault:"4"`

	// Discovery
	DiscoveryPort int    `env:"DISCOVERY_PORT" envDefault:"20000"`
	ClusterCookie string `env:"CLUSTER_COOKIE" envDefault:"elevator-fleet"`

	// Inter-node RPC listen port
	RPCPort int `env:"RPC_PORT" envDefault:"20001"`

	// Protocol timing
	DoorHoldDuration      time.Duration `env:"DOOR_HOLD_DURATION" envDefault:"2s"`
	MotionStuckTimeout    time.Duration `env:"MOTION_STUCK_TIMEOUT" envDefault:"3s"`
	AuctionBidDeadline    time.Duration `env:"AUCTION_BID_DEADLINE" envDefault:"1s"`
	RPCDeadline           time.Duration `env:"RPC_DEADLINE" envDefault:"1s"`
	WatchdogOrderDeadline time.Duration `env:"WATCHDOG_ORDER_DEADLINE" envDefault:"30s"`
	ActiveBackupHorizon   time.Duration `env:"ACTIVE_BACKUP_HORIZON" envDefault:"120s"`
	StandbyBackupHorizon  time.Duration `env:"STANDBY_BACKUP_HORIZON" envDefault:"10m"`
	BeaconInterval        time.Duration `env:"BEACON_INTERVAL" envDefault:"1s"`

	// Persistence
	BackupPath string `env:"BACKUP_PATH" envDefault:"watchdog_backup.txt"`

	// HTTP observation surface
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"6660"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`
	WebSocketPath   string        `env:"WEBSOCKET_PATH" envDefault:"/ws/status"`
	ShutdownGrace   time.Duration `env:"SHUTDOWN_GRACE" envDefault:"2s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Driver connection (out of core scope per spec §1, but every node needs
	// to know where to dial it).
	DriverAddr string `env:"DRIVER_ADDR" envDefault:"localhost:15657"`
}

// Load reads configuration from the environment, applying defaults and
// validating the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break fleet-wide invariants.
func (c *Config) Validate() error {
	if c.NodeName == "" {
		return fmt.Errorf("NODE_NAME must be set")
	}
	if c.FloorCount < 2 {
		return fmt.Errorf("FLOOR_COUNT must be at least 2, got %d", c.FloorCount)
	}
	if c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535 {
		return fmt.Errorf("DISCOVERY_PORT must be a valid port, got %d", c.DiscoveryPort)
	}
	return nil
}

// Defaults mirrors constants.* so callers that never loaded Config (e.g.
// some unit tests) can still build a sane instance.
func Defaults(nodeName string) *Config {
	return &Config{
		NodeName:              nodeName,
		LogLevel:              constants.DefaultLogLevel,
		FloorCount:            constants.DefaultFloorCount,
		DiscoveryPort:         constants.DefaultDiscoveryPort,
		ClusterCookie:         "elevator-fleet",
		RPCPort:               constants.DefaultDiscoveryPort + 1,
		DoorHoldDuration:      constants.DoorHoldDuration,
		MotionStuckTimeout:    constants.MotionStuckTimeout,
		AuctionBidDeadline:    constants.AuctionBidDeadline,
		RPCDeadline:           constants.RPCDeadline,
		WatchdogOrderDeadline: constants.WatchdogOrderDeadline,
		ActiveBackupHorizon:   constants.ActiveBackupHorizon,
		StandbyBackupHorizon:  constants.StandbyBackupHorizon,
		BeaconInterval:        constants.BeaconInterval,
		BackupPath:            constants.DefaultBackupPath,
		HTTPPort:              constants.DefaultHTTPPort,
		MetricsEnabled:        true,
		WebSocketPath:         "/ws/status",
		ShutdownGrace:         2 * time.Second,
		ShutdownTimeout:       10 * time.Second,
	}
}
