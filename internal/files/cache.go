package files

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	payloadCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comms_payload_cache_hits_total",
		Help: "Decoded file payloads served from the cache.",
	})
	payloadCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comms_payload_cache_misses_total",
		Help: "Decoded file payloads that had to be decoded again.",
	})
)

// payloadCache holds decoded file content by id. A nil cache is a no-op.
type payloadCache struct {
	lru *expirable.LRU[string, []byte]
}

func newPayloadCache(size int, ttl time.Duration) *payloadCache {
	if size <= 0 {
		return nil
	}
	return &payloadCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *payloadCache) get(id string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	data, ok := c.lru.Get(id)
	if ok {
		payloadCacheHits.Inc()
		return data, true
	}
	payloadCacheMisses.Inc()
	return nil, false
}

func (c *payloadCache) add(id string, data []byte) {
	if c != nil {
		c.lru.Add(id, data)
	}
}

func (c *payloadCache) remove(id string) {
	if c != nil {
		c.lru.Remove(id)
	}
}

func (c *payloadCache) purge() {
	if c != nil {
		c.lru.Purge()
	}
}

func (c *payloadCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
