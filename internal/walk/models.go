package walk

import (
	"time"

	"github.com/RyuseiKamei/MeowChain/internal/settlement"
	"github.com/RyuseiKamei/MeowChain/internal/shared/geo"
)

const (
	StatusActive   = "active"
	StatusDegraded = "degraded"
	StatusStopped  = "stopped"
)

// Fix is one raw device location report with its accuracy radius.
type Fix struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`
}

type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	WalletAddress  string    `json:"wallet_address"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
	TotalDistanceM float64   `json:"total_distance_m"`
	Status         string    `json:"status"`
}

// FixResult reports what one fix did to the session.
type FixResult struct {
	Accepted  bool       `json:"accepted"`
	Paired    bool       `json:"paired"`
	Average   *geo.Point `json:"average,omitempty"`
	DeltaM    float64    `json:"delta_m"`
	TotalM    float64    `json:"total_m"`
	FirstLock bool       `json:"first_lock"`
}

// StopResult is the finalized session plus, when a quoter is wired, the
// reward settlement awaiting the walker's confirmation.
type StopResult struct {
	Session
	Reward *settlement.Settlement `json:"reward,omitempty"`
}

type Summary struct {
	SessionID   string  `json:"session_id"`
	PointCount  int     `json:"point_count"`
	DistanceM   float64 `json:"distance_m"`
	DurationSec int64   `json:"duration_sec"`
	Status      string  `json:"status"`
}
