// Package health probes hosts on a fixed interval and publishes which of them
// are reachable.
package health

import "time"

// Host is a monitored endpoint. Its addresses are resolved once at startup
// and stay fixed; reachability is tracked by the Monitor.
type Host struct {
	Identity string `json:"identity"`
	IPv4     string `json:"ipv4"`
	IPv6     string `json:"ipv6,omitempty"`
}

// Status is the outcome of the most recent completed probe of a host.
type Status struct {
	Reachable  bool      `json:"reachable"`
	PacketLoss float64   `json:"packetLoss"` // percent, -1 when unknown
	Detail     string    `json:"detail,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
}
