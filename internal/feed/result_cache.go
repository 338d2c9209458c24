package feed

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"triagem/internal/domain"
)

const triageCacheMaxEntries = 1024

// triageCache is an LRU of triage results with per entry expiry.
type triageCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
}

type triageCacheEntry struct {
	key       string
	ticket    domain.Ticket
	expiresAt time.Time
}

func newTriageCache(maxEntries int) *triageCache {
	if maxEntries <= 0 {
		return nil
	}

	return &triageCache{
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

// triageCacheKey combines the canonical item URL with a hash of the text and
// of the requested labels. Empty URL or text yields no key.
func triageCacheKey(rawURL string, text string, labels []string) string {
	canonicalURL := canonicalItemURL(rawURL)
	if canonicalURL == "" {
		return ""
	}

	normalizedText := strings.TrimSpace(text)
	if normalizedText == "" {
		return ""
	}

	h := sha256.New()
	h.Write([]byte(normalizedText))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(labels, "\x1f")))

	return canonicalURL + "|" + hex.EncodeToString(h.Sum(nil))
}

func (c *triageCache) get(key string, now time.Time) (domain.Ticket, bool) {
	if c == nil || key == "" {
		return domain.Ticket{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return domain.Ticket{}, false
	}

	entry, ok := elem.Value.(*triageCacheEntry)
	if !ok {
		return domain.Ticket{}, false
	}

	if now.After(entry.expiresAt) {
		c.removeElement(elem)

		return domain.Ticket{}, false
	}

	c.order.MoveToFront(elem)

	return entry.ticket, true
}

func (c *triageCache) set(
	key string,
	ticket domain.Ticket,
	expiresAt time.Time,
	now time.Time,
) {
	if c == nil || key == "" || expiresAt.IsZero() || !expiresAt.After(now) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry, castOk := elem.Value.(*triageCacheEntry)
		if !castOk {
			return
		}

		entry.ticket = ticket
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)

		return
	}

	elem := c.order.PushFront(&triageCacheEntry{
		key:       key,
		ticket:    ticket,
		expiresAt: expiresAt,
	})
	c.entries[key] = elem

	c.evictExpiredLocked(now)
	c.enforceSizeLimitLocked()
}

func (c *triageCache) evictExpiredLocked(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()

		if entry, ok := elem.Value.(*triageCacheEntry); ok && now.After(entry.expiresAt) {
			c.removeElement(elem)
		}

		elem = prev
	}
}

func (c *triageCache) enforceSizeLimitLocked() {
	for len(c.entries) > c.maxEntries {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		c.removeElement(elem)
	}
}

func (c *triageCache) removeElement(elem *list.Element) {
	entry, ok := elem.Value.(*triageCacheEntry)
	if !ok {
		return
	}

	delete(c.entries, entry.key)
	c.order.Remove(elem)
}
