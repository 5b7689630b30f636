package cache

import "time"

// Cache is a bounded key/value store with per-entry TTL.
type Cache interface {
	// Get returns (value, true) when key is present and unexpired.
	Get(key string) (interface{}, bool)

	// Set stores value under key for ttl. Writes may be applied asynchronously
	// and may be refused under admission pressure; false means refused.
	Set(key string, value interface{}, ttl time.Duration) bool

	Delete(key string)
	Clear()
	Close()
}
