package walk

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/RyuseiKamei/MeowChain/internal/db"
	"github.com/RyuseiKamei/MeowChain/internal/settlement"
	"github.com/RyuseiKamei/MeowChain/internal/shared/geo"
	"github.com/RyuseiKamei/MeowChain/internal/stream"

	"github.com/google/uuid"
)

var (
	ErrSessionNotActive = errors.New("walk session is not active")
	ErrStaleFix         = errors.New("fix is older than the freshness window")
	ErrNotOwner         = errors.New("walk session belongs to another user")
)

// RewardQuoter turns a finalized distance into a settlement waiting for
// the walker's confirmation. *settlement.Engine satisfies it.
type RewardQuoter interface {
	QuoteReward(ctx context.Context, sessionID, recipient string, distanceM float64) (settlement.Settlement, error)
}

// Service owns the live sessions. Each session holds its own sampler and
// watchdog; the database carries the durable record and the hub carries
// live updates to any watching client.
type Service struct {
	db     db.Querier
	hub    *stream.Hub
	quoter RewardQuoter

	mu     sync.Mutex
	active map[string]*liveSession
}

type liveSession struct {
	userID  string
	sampler *Sampler
	watch   *watchdog
}

func NewService(database db.Querier, hub *stream.Hub, quoter RewardQuoter) *Service {
	return &Service{
		db:     database,
		hub:    hub,
		quoter: quoter,
		active: map[string]*liveSession{},
	}
}

// Start opens a fresh session. The sampler begins zeroed; there is no
// carry-over from any earlier session.
func (s *Service) Start(ctx context.Context, input Session) (Session, error) {
	input.ID = uuid.NewString()
	if input.StartedAt.IsZero() {
		input.StartedAt = time.Now()
	}
	input.Status = StatusActive

	row := s.db.QueryRow(ctx, `
		INSERT INTO walk_sessions (id, user_id, wallet_address, started_at, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING started_at, status
	`, input.ID, input.UserID, input.WalletAddress, input.StartedAt, input.Status)
	if err := row.Scan(&input.StartedAt, &input.Status); err != nil {
		return Session{}, err
	}

	live := &liveSession{userID: input.UserID, sampler: NewSampler()}
	live.watch = newWatchdog(func() { s.markDegraded(input.ID) })

	s.mu.Lock()
	s.active[input.ID] = live
	s.mu.Unlock()

	return input, nil
}

// Ingest runs one fix through the session's sampler. Accepted pairings are
// persisted and broadcast; rejected fixes are a no-op beyond the result.
// Only the user who started the session may feed it.
func (s *Service) Ingest(ctx context.Context, sessionID, userID string, f Fix) (FixResult, error) {
	live := s.lookup(sessionID)
	if live == nil {
		return FixResult{}, ErrSessionNotActive
	}
	if live.userID != userID {
		return FixResult{}, ErrNotOwner
	}

	if !f.RecordedAt.IsZero() && time.Since(f.RecordedAt) > maxFixAge {
		return FixResult{}, ErrStaleFix
	}

	live.watch.Kick()
	res := live.sampler.Observe(f)

	if res.Paired {
		if err := s.persistPairing(ctx, sessionID, res); err != nil {
			return FixResult{}, err
		}
		s.broadcast(sessionID, "position", res)
	}
	if res.FirstLock {
		s.broadcast(sessionID, "location_acquired", res)
	}
	return res, nil
}

// Stop tears the session down: the watchdog is released so no further fix
// is processed, and the final total (one decimal place) is recorded. A
// quoted reward is left in confirm_requested state for the walker to
// accept or decline.
func (s *Service) Stop(ctx context.Context, sessionID, userID string) (StopResult, error) {
	s.mu.Lock()
	live := s.active[sessionID]
	if live != nil && live.userID != userID {
		s.mu.Unlock()
		return StopResult{}, ErrNotOwner
	}
	delete(s.active, sessionID)
	s.mu.Unlock()

	if live == nil {
		return StopResult{}, ErrSessionNotActive
	}
	live.watch.Stop()

	final := live.sampler.Final()
	endedAt := time.Now()

	var session Session
	row := s.db.QueryRow(ctx, `
		UPDATE walk_sessions
		SET ended_at=$2, total_distance_m=$3, status=$4
		WHERE id=$1
		RETURNING id, user_id, wallet_address, started_at, ended_at, total_distance_m, status
	`, sessionID, endedAt, final, StatusStopped)
	if err := row.Scan(&session.ID, &session.UserID, &session.WalletAddress,
		&session.StartedAt, &session.EndedAt, &session.TotalDistanceM, &session.Status); err != nil {
		return StopResult{}, err
	}

	result := StopResult{Session: session}
	if s.quoter != nil {
		reward, err := s.quoter.QuoteReward(ctx, session.ID, session.WalletAddress, session.TotalDistanceM)
		if err != nil {
			return StopResult{}, err
		}
		result.Reward = &reward
		s.broadcast(sessionID, "reward_quote", reward)
	}
	return result, nil
}

// ReportProviderError records a location-provider failure. The session
// keeps running in a degraded state; nothing accumulated is rolled back.
func (s *Service) ReportProviderError(sessionID, userID, reason string) error {
	live := s.lookup(sessionID)
	if live == nil {
		return ErrSessionNotActive
	}
	if live.userID != userID {
		return ErrNotOwner
	}
	log.Printf("walk %s: location provider error: %s", sessionID, reason)
	s.markDegraded(sessionID)
	return nil
}

func (s *Service) Summary(ctx context.Context, sessionID string) (Summary, error) {
	// ended_at is NULL until stop, so it cannot scan into a bare time.Time.
	var session Session
	var endedAt *time.Time
	row := s.db.QueryRow(ctx, `
		SELECT id, started_at, ended_at, COALESCE(total_distance_m,0), status
		FROM walk_sessions WHERE id=$1
	`, sessionID)
	if err := row.Scan(&session.ID, &session.StartedAt, &endedAt, &session.TotalDistanceM, &session.Status); err != nil {
		return Summary{}, err
	}
	if endedAt != nil {
		session.EndedAt = *endedAt
	}

	var pointCount int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM walk_points WHERE session_id=$1`, sessionID).Scan(&pointCount); err != nil {
		return Summary{}, err
	}

	distance := session.TotalDistanceM
	if live := s.lookup(sessionID); live != nil {
		distance = live.sampler.TotalM()
	}

	duration := time.Since(session.StartedAt)
	if !session.EndedAt.IsZero() {
		duration = session.EndedAt.Sub(session.StartedAt)
	}

	return Summary{
		SessionID:   session.ID,
		PointCount:  pointCount,
		DistanceM:   distance,
		DurationSec: int64(duration.Seconds()),
		Status:      session.Status,
	}, nil
}

func (s *Service) Route(ctx context.Context, sessionID string) ([]geo.Point, error) {
	rows, err := s.db.Query(ctx, `
		SELECT lat, lng
		FROM walk_points WHERE session_id=$1
		ORDER BY recorded_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var route []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		route = append(route, p)
	}
	return route, nil
}

func (s *Service) lookup(sessionID string) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[sessionID]
}

func (s *Service) persistPairing(ctx context.Context, sessionID string, res FixResult) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO walk_points (session_id, lat, lng, recorded_at)
		VALUES ($1,$2,$3,$4)
	`, sessionID, res.Average.Lat, res.Average.Lng, time.Now())
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		UPDATE walk_sessions
		SET total_distance_m = $2
		WHERE id=$1
	`, sessionID, res.TotalM)
	return err
}

func (s *Service) markDegraded(sessionID string) {
	if s.lookup(sessionID) == nil {
		return
	}
	_, err := s.db.Exec(context.Background(), `
		UPDATE walk_sessions SET status=$2 WHERE id=$1 AND status=$3
	`, sessionID, StatusDegraded, StatusActive)
	if err != nil {
		log.Printf("walk %s: mark degraded: %v", sessionID, err)
	}
	s.broadcast(sessionID, "degraded", nil)
}

func (s *Service) broadcast(sessionID, event string, data any) {
	if s.hub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"type": event, "data": data})
	s.hub.Broadcast(sessionID, payload)
}
