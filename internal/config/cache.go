package config

import (
	"strings"
	"time"
)

// CacheConfig configures the response cache in front of the read-mostly
// kiosk endpoints (waitlist info, inventory).  The TTL is short because
// inventory changes on every assignment and checkout.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string // route_query, route or method_route_query
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads the CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	ttl := envDur("CACHE_TTL", 5*time.Second)
	if ttl <= 0 {
		ttl = time.Second
	}
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      methodSet(envStr("CACHE_METHODS", "GET")),
		TTL:          ttl,
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 256<<10),
	}
}

// methodSet turns "get, head" into {"GET", "HEAD"}.
func methodSet(list string) map[string]bool {
	set := make(map[string]bool)
	for _, m := range strings.Split(list, ",") {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			set[m] = true
		}
	}
	return set
}
