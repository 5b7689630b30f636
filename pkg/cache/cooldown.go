package cache

import "time"

// Cooldown suppresses repeated events for the same key within a window.
type Cooldown struct {
	cache  Cache
	window time.Duration
}

// NewCooldown wraps c. A non-positive window disables suppression.
func NewCooldown(c Cache, window time.Duration) *Cooldown {
	return &Cooldown{cache: c, window: window}
}

// Active reports whether key was marked within the window.
func (c *Cooldown) Active(key string) bool {
	if c == nil || c.cache == nil || c.window <= 0 {
		return false
	}
	_, found := c.cache.Get(key)
	return found
}

// Mark starts the window for key.
func (c *Cooldown) Mark(key string) {
	if c == nil || c.cache == nil || c.window <= 0 {
		return
	}
	c.cache.Set(key, struct{}{}, c.window)
}

// Window returns the suppression window.
func (c *Cooldown) Window() time.Duration {
	if c == nil {
		return 0
	}
	return c.window
}
