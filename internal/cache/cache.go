// Package cache holds short-lived JSON: the scenario catalog, per-user
// preferences and the running real-time score of live sessions.
package cache

import (
	"context"
	"time"
)

// Cache never owns data: a miss or an error falls back to the primary store.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// ScenarioListKey holds every active scenario; filters are applied in memory.
const ScenarioListKey = "scenarios:active"

func ScenarioKey(id string) string        { return "scenario:" + id }
func MetricsKey(sessionID string) string  { return "session:" + sessionID + ":metrics" }
func PreferencesKey(userID string) string { return "prefs:" + userID }
