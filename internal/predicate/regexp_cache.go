package predicate

import (
	"container/list"
	"regexp"
	"sync"
)

// regexLRU caches compiled regex patterns for the "~~" vars operator,
// grounded on the teacher's internal/business/routing/matcher_cache.go
// RegexCache: an LRU map + doubly-linked list for O(1) get/put and
// bounded memory, since filter configuration can in principle supply an
// unbounded number of distinct patterns over the process lifetime (hot
// reloads, multi-tenant route files).
type regexLRU struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxSize int
}

type regexEntry struct {
	pattern string
	re      *regexp.Regexp
}

func newRegexLRU(maxSize int) *regexLRU {
	return &regexLRU{
		items:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
	}
}

func (c *regexLRU) get(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	if el, ok := c.items[pattern]; ok {
		c.order.MoveToFront(el)
		re := el.Value.(*regexEntry).re
		c.mu.Unlock()
		return re, nil
	}
	c.mu.Unlock()

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[pattern]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*regexEntry).re, nil
	}
	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*regexEntry).pattern)
		}
	}
	el := c.order.PushFront(&regexEntry{pattern: pattern, re: re})
	c.items[pattern] = el
	return re, nil
}

// defaultRegexCacheSize bounds memory for the package-level cache used
// by the "~~" operator; 1000 distinct patterns matches the teacher's own
// RegexCache default.
const defaultRegexCacheSize = 1000

var packageRegexCache = newRegexLRU(defaultRegexCacheSize)

func lookupRegex(pattern string) (*regexp.Regexp, error) {
	return packageRegexCache.get(pattern)
}
