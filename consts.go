package server

import "time"

// Constants shared by the Registry and Process roles.
const (
	ServerVersion = "dev"

	// UnicastTimeout bounds both address resolution and the TCP connect +
	// write of a single unicast send.
	UnicastTimeout = 5 * time.Second

	// MaxEventBytes bounds a single framed read.
	MaxEventBytes = 1000

	// ViewBroadcastInterval is the Registry's periodic UpdateRegisteredProcesses
	// fan-out.
	ViewBroadcastInterval = 10 * time.Second

	// HeartbeatIntervalMin/Max bound the Registry's jittered liveness sweep.
	HeartbeatIntervalMin = 10 * time.Second
	HeartbeatIntervalMax = 20 * time.Second

	// ConsensusDriverInterval is the Registry's Paxos supervisor tick.
	ConsensusDriverInterval = 10 * time.Second

	// ProcessRegistryHeartbeatInterval is how often a Process checks that
	// the Registry is still alive.
	ProcessRegistryHeartbeatInterval = 5 * time.Second

	// ProcessRandomPeerSendInterval gates the random-peer-send loop.
	ProcessRandomPeerSendInterval = 20 * time.Second

	// ProcessBroadcastInterval gates the broadcast-peer loop.
	ProcessBroadcastInterval = 5 * time.Second

	// InventedValueMin/Max bound a freshly-invented proposal value when no
	// prior accepted value is seen.
	InventedValueMin = 100
	InventedValueMax = 1000

	// DefaultRegistryPort is the launcher's starting port.
	DefaultRegistryPort = 8080
)
