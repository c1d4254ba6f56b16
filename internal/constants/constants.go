package constants

import "time"

// Application constants centralized in one location to improve type safety
// and eliminate magic strings throughout the codebase

// Protocol timing (spec-mandated deadlines and horizons)
const (
	DoorHoldDuration      = 2 * time.Second
	MotionStuckTimeout    = 3 * time.Second
	AuctionBidDeadline    = 1 * time.Second
	RPCDeadline           = 1 * time.Second
	WatchdogOrderDeadline = 30 * time.Second
	ActiveBackupHorizon   = 120 * time.Second
	StandbyBackupHorizon  = 10 * time.Minute
	BeaconInterval        = 1 * time.Second
	PeerStaleAfter        = 4 * BeaconInterval
)

// Default Configuration Values
const (
	DefaultHTTPPort      = 6660
	DefaultLogLevel      = "INFO"
	DefaultFloorCount    = 4
	DefaultDiscoveryPort = 20000
	DefaultBackupPath    = "watchdog_backup.txt"
)

// HTTP Content Types
const (
	ContentTypeJSON      = "application/json"
	ContentTypeTextPlain = "text/plain"
)

// Component Names for Logging
const (
	ComponentHTTPServer  = "http-server"
	ComponentLift        = "lift"
	ComponentOrderServer = "order_server"
	ComponentAuction     = "auction"
	ComponentWatchdog    = "watchdog"
	ComponentDiscovery   = "discovery"
	ComponentRPC         = "rpc"
	ComponentCluster     = "cluster"
)

// Floor Validation Limits
const (
	MinAllowedFloor = -100
	MaxAllowedFloor = 200
)

// Metrics
const (
	MetricsNamespace = "elevator_fleet"
	NodeLabel        = "node"
)

// Cost model weights used by Order Server's EvaluateCost
const (
	CostPerPendingOrder  = 1
	DirectionPenaltySame = 0
	DirectionPenaltyIdle = 1
	DirectionPenaltyOpp  = 3
)
