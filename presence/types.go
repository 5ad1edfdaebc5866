package presence

import (
	"context"
	"time"
)

// OperatorState is the live view of one operator used by dispatchers when
// picking who to assign.
type OperatorState struct {
	OperatorID    int64      `json:"operator_id"`
	HubID         int64      `json:"hub_id"`
	Name          string     `json:"name"`
	Capability    string     `json:"capability"`
	Verified      bool       `json:"verified"`
	Active        bool       `json:"active"`
	Online        bool       `json:"online"`
	Lat           *float64   `json:"lat,omitempty"`
	Lng           *float64   `json:"lng,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	TotalJobs     int64      `json:"total_jobs"`
	TotalEarnings float64    `json:"total_earnings"`
}

// Ping is a device-reported location and online flag.
type Ping struct {
	OperatorID int64   `json:"operator_id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Online     bool    `json:"online"`
}

// NearbyOperator is an online operator within a search radius.
type NearbyOperator struct {
	OperatorID int64   `json:"operator_id"`
	DistanceKm float64 `json:"distance_km"`
}

// Cache is the fast read side of presence. SQL stays authoritative; a cache
// error is logged and never fails the write.
type Cache interface {
	SetOperator(ctx context.Context, st *OperatorState) error
	GetOperator(ctx context.Context, operatorID int64) (*OperatorState, error)
	Nearby(ctx context.Context, hubID int64, lat, lng, radiusKm float64, limit int) ([]NearbyOperator, error)
	AddOperatorStats(ctx context.Context, operatorID, jobs int64, earnings float64) error
	IncrMetric(ctx context.Context, name string) error
	FlushAll(ctx context.Context) error
}
