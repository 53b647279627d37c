package cache

import "time"

// Cache stores market metadata that is expensive to refetch. Values
// expire on their TTL; eviction under memory pressure is allowed at
// any time, so callers must treat every Get as fallible.
type Cache interface {
	Get(key string) (any, bool)

	// Set stores a value. Returns false when the entry was rejected
	// by the admission policy.
	Set(key string, value any, ttl time.Duration) bool

	Delete(key string)
	Clear()
	Close()
}
