package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps operator state as JSON, online operators in one geo set
// per hub, and counters for metrics and operator stats.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func stateKey(operatorID int64) string {
	return fmt.Sprintf("residuehub:operator:%d:state", operatorID)
}

func statsKey(operatorID int64) string {
	return fmt.Sprintf("residuehub:operator:%d:stats", operatorID)
}

func geoKey(hubID int64) string {
	return fmt.Sprintf("residuehub:hub:%d:online", hubID)
}

func metricKey(name string) string {
	return "residuehub:metrics:" + name
}

const allOperatorsKey = "residuehub:operators"

func (r *RedisStore) SetOperator(ctx context.Context, st *OperatorState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	member := strconv.FormatInt(st.OperatorID, 10)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, stateKey(st.OperatorID), data, 0)
	pipe.SAdd(ctx, allOperatorsKey, st.OperatorID)
	if st.Online && st.Lat != nil && st.Lng != nil {
		pipe.GeoAdd(ctx, geoKey(st.HubID), &redis.GeoLocation{
			Name:      member,
			Longitude: *st.Lng,
			Latitude:  *st.Lat,
		})
	} else {
		pipe.ZRem(ctx, geoKey(st.HubID), member)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetOperator(ctx context.Context, operatorID int64) (*OperatorState, error) {
	data, err := r.client.Get(ctx, stateKey(operatorID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st OperatorState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *RedisStore) Nearby(ctx context.Context, hubID int64, lat, lng, radiusKm float64, limit int) ([]NearbyOperator, error) {
	locs, err := r.client.GeoSearchLocation(ctx, geoKey(hubID), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyOperator, 0, len(locs))
	for _, l := range locs {
		id, err := strconv.ParseInt(l.Name, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, NearbyOperator{OperatorID: id, DistanceKm: l.Dist})
	}
	return out, nil
}

func (r *RedisStore) AddOperatorStats(ctx context.Context, operatorID, jobs int64, earnings float64) error {
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, statsKey(operatorID), "jobs", jobs)
	pipe.HIncrByFloat(ctx, statsKey(operatorID), "earnings", earnings)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) IncrMetric(ctx context.Context, name string) error {
	return r.client.Incr(ctx, metricKey(name)).Err()
}

// Metric reads a counter written by IncrMetric; missing counters read as zero.
func (r *RedisStore) Metric(ctx context.Context, name string) (int64, error) {
	n, err := r.client.Get(ctx, metricKey(name)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (r *RedisStore) allOperatorIDs(ctx context.Context) ([]int64, error) {
	members, err := r.client.SMembers(ctx, allOperatorsKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FlushAll drops cached operator state and geo sets. Metrics and stats
// counters survive; they are not derived from SQL.
func (r *RedisStore) FlushAll(ctx context.Context) error {
	ids, err := r.allOperatorIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		st, err := r.GetOperator(ctx, id)
		if err == nil && st != nil {
			r.client.Del(ctx, geoKey(st.HubID))
		}
		r.client.Del(ctx, stateKey(id))
	}
	return r.client.Del(ctx, allOperatorsKey).Err()
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
