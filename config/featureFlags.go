package config

import (
	"os"
	"strings"
)

const (
	DefaultFeedPageLimit = 500
	MaxFeedPageLimit     = 5000
)

// PubSubEnabled routes ticket-arrival events through Pub/Sub instead of
// re-evaluating in-process.
//
// Set via env:
// - PUBSUB_ENABLED=true
func PubSubEnabled() bool {
	return EnvBoolDefault("PUBSUB_ENABLED", false)
}

// AutoReconcileOnIngest reconciles gateway transactions as they are posted.
// Disable it to leave new rows PENDING for a backfill run.
//
// Set via env:
// - AUTO_RECONCILE_ON_INGEST=false
func AutoReconcileOnIngest() bool {
	return EnvBoolDefault("AUTO_RECONCILE_ON_INGEST", true)
}

// FeedPageLimit caps a single list response.
//
// Set via env:
// - FEED_PAGE_LIMIT=500
func FeedPageLimit() int {
	n := intFromEnv("FEED_PAGE_LIMIT", DefaultFeedPageLimit)
	if n <= 0 {
		return DefaultFeedPageLimit
	}
	if n > MaxFeedPageLimit {
		return MaxFeedPageLimit
	}
	return n
}

// GatewaySalt is the shared secret appended to the gateway checksum input.
func GatewaySalt() string {
	return os.Getenv("GATEWAY_SALT")
}

func TicketEventsTopic() string {
	if v := strings.TrimSpace(os.Getenv("TICKET_EVENTS_TOPIC")); v != "" {
		return v
	}
	return "ticket-arrived"
}

func EnvBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
