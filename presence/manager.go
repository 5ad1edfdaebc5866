package presence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

// ErrUnknownOperator is returned for pings from operators not in the directory.
var ErrUnknownOperator = errors.New("unknown operator")

// Manager provides write-through presence: SQL first, then the cache.
// A nil cache is allowed; reads then come straight from SQL.
type Manager struct {
	db    *store.DB
	cache Cache
}

func NewManager(db *store.DB, cache Cache) *Manager {
	return &Manager{db: db, cache: cache}
}

// Ping overwrites the operator's location and online flag. Concurrent pings
// for one operator are last-writer-wins; each is a single UPDATE.
func (m *Manager) Ping(ctx context.Context, p Ping) (*OperatorState, error) {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return nil, fmt.Errorf("presence: coordinates out of range (%f, %f)", p.Lat, p.Lng)
	}
	if err := m.db.UpdateOperatorPresence(ctx, p.OperatorID, p.Lat, p.Lng, p.Online); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operator %d: %w", p.OperatorID, ErrUnknownOperator)
		}
		return nil, fmt.Errorf("update presence for operator %d: %w", p.OperatorID, err)
	}
	st, err := m.stateFromSQL(ctx, p.OperatorID)
	if err != nil {
		return nil, err
	}
	m.writeCache(ctx, st)
	return st, nil
}

// Get reads from the cache and falls back to SQL.
func (m *Manager) Get(ctx context.Context, operatorID int64) (*OperatorState, error) {
	if m.cache != nil {
		st, err := m.cache.GetOperator(ctx, operatorID)
		if err == nil && st != nil {
			return st, nil
		}
		if err != nil {
			log.Printf("presence: cache read for operator %d: %v", operatorID, err)
		}
	}
	st, err := m.stateFromSQL(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	m.writeCache(ctx, st)
	return st, nil
}

// Nearby lists online operators of a hub within radiusKm of a point, nearest first.
func (m *Manager) Nearby(ctx context.Context, hubID int64, lat, lng, radiusKm float64, limit int) ([]NearbyOperator, error) {
	if limit <= 0 {
		limit = 20
	}
	if m.cache != nil {
		out, err := m.cache.Nearby(ctx, hubID, lat, lng, radiusKm, limit)
		if err == nil {
			return out, nil
		}
		log.Printf("presence: cache geo search for hub %d: %v", hubID, err)
	}

	ops, err := m.db.ListOperatorsByHub(ctx, hubID)
	if err != nil {
		return nil, err
	}
	var out []NearbyOperator
	for _, op := range ops {
		if !op.Online || op.Lat == nil || op.Lng == nil {
			continue
		}
		d := haversineKm(lat, lng, *op.Lat, *op.Lng)
		if d <= radiusKm {
			out = append(out, NearbyOperator{OperatorID: op.ID, DistanceKm: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SweepStale marks operators offline whose last ping is older than threshold.
func (m *Manager) SweepStale(ctx context.Context, threshold time.Duration) ([]int64, error) {
	ids, err := m.db.MarkStaleOperatorsOffline(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("mark stale operators: %w", err)
	}
	for _, id := range ids {
		if st, err := m.stateFromSQL(ctx, id); err == nil {
			m.writeCache(ctx, st)
		}
	}
	if len(ids) > 0 {
		log.Printf("presence: marked %d stale operators offline", len(ids))
	}
	return ids, nil
}

// SyncCacheFromSQL rebuilds the cache from the operator directory. Called on startup.
func (m *Manager) SyncCacheFromSQL(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}
	if err := m.cache.FlushAll(ctx); err != nil {
		log.Printf("presence: flush cache: %v", err)
	}
	ops, err := m.db.ListOperators(ctx)
	if err != nil {
		return err
	}
	for _, op := range ops {
		m.writeCache(ctx, stateOf(op))
	}
	log.Printf("presence: synced %d operators to cache", len(ops))
	return nil
}

// RefreshOperator re-reads one operator from SQL into the cache, e.g. after
// its totals changed.
func (m *Manager) RefreshOperator(ctx context.Context, operatorID int64) {
	if m.cache == nil {
		return
	}
	st, err := m.stateFromSQL(ctx, operatorID)
	if err != nil {
		log.Printf("presence: refresh operator %d: %v", operatorID, err)
		return
	}
	m.writeCache(ctx, st)
}

// RecordCredit mirrors a job credit into the cached operator stats.
func (m *Manager) RecordCredit(ctx context.Context, operatorID int64, earnings float64) {
	if m.cache == nil {
		return
	}
	if err := m.cache.AddOperatorStats(ctx, operatorID, 1, earnings); err != nil {
		log.Printf("presence: stats for operator %d: %v", operatorID, err)
	}
	m.RefreshOperator(ctx, operatorID)
}

// IncrMetric bumps a named counter in the cache.
func (m *Manager) IncrMetric(ctx context.Context, name string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.IncrMetric(ctx, name); err != nil {
		log.Printf("presence: metric %s: %v", name, err)
	}
}

func (m *Manager) writeCache(ctx context.Context, st *OperatorState) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SetOperator(ctx, st); err != nil {
		log.Printf("presence: cache write for operator %d: %v", st.OperatorID, err)
	}
}

func (m *Manager) stateFromSQL(ctx context.Context, operatorID int64) (*OperatorState, error) {
	op, err := m.db.GetOperator(ctx, operatorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operator %d: %w", operatorID, ErrUnknownOperator)
		}
		return nil, err
	}
	return stateOf(op), nil
}

func stateOf(op *store.Operator) *OperatorState {
	return &OperatorState{
		OperatorID:    op.ID,
		HubID:         op.HubID,
		Name:          op.Name,
		Capability:    op.Capability,
		Verified:      op.Verified,
		Active:        op.Active,
		Online:        op.Online,
		Lat:           op.Lat,
		Lng:           op.Lng,
		LastSeenAt:    op.LastSeenAt,
		TotalJobs:     op.TotalJobs,
		TotalEarnings: op.TotalEarnings,
	}
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
