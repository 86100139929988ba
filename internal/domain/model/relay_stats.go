package model

import "time"

// RelayStats is the point-in-time view of the shared relay state served by the status endpoint.
type RelayStats struct {
	PoolCapacity  int           `json:"pool_capacity"`
	PoolStored    int           `json:"pool_stored"`
	PoolWindow    int           `json:"pool_window"`
	Subscribers   int           `json:"subscribers"`
	DroppedTotal  uint64        `json:"dropped_total"`
	Uptime        time.Duration `json:"uptime"`
	ServerVersion string        `json:"server_version"`
}
