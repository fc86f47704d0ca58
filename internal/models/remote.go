package models

import "time"

// RemoteConfig describes a host that runs the network-control tool over SSH.
type RemoteConfig struct {
	Host       string
	Port       int
	Username   string
	PrivateKey []byte      // loaded from file path
	KeyPath    string      // path to key file
	Wake       *WakeConfig // nil if the host is always on
}

// WakeConfig holds Wake-on-LAN settings for the remote host.
type WakeConfig struct {
	MACAddress    string
	BroadcastIP   string
	Timeout       time.Duration // max time to wait for the SSH port
	PollInterval  time.Duration // how often to dial the SSH port
	StabilizeWait time.Duration // wait after the port accepts connections
}

// WakeResult holds the result of a Wake-on-LAN operation.
type WakeResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}
