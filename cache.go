package wyrm

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-wyrm/pkg/ast"
)

// templateCache is the build-once-publish-many store for resolved
// templates. Concurrent misses for the same key collapse into a single
// build via singleflight; later callers wait on the in-flight result.
// Permanent failures (lex, parse, inheritance) are cached alongside
// successes so broken templates are diagnosed once.
type templateCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	tpl *ast.ResolvedTemplate
	err error
}

func newTemplateCache() *templateCache {
	return &templateCache{entries: map[string]cacheEntry{}}
}

func (c *templateCache) do(key string, build func() (*ast.ResolvedTemplate, error)) (*ast.ResolvedTemplate, error) {
	c.mu.RLock()
	entry, hit := c.entries[key]
	c.mu.RUnlock()
	if hit {
		return entry.tpl, entry.err
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		entry, hit := c.entries[key]
		c.mu.RUnlock()
		if hit {
			return entry.tpl, entry.err
		}

		tpl, err := build()
		// Results of dynamic include targets depend on the caller's
		// variables; publish only context-independent builds.
		if err != nil || !tpl.Dynamic {
			c.mu.Lock()
			c.entries[key] = cacheEntry{tpl: tpl, err: err}
			c.mu.Unlock()
		}
		return tpl, err
	})
	if err != nil {
		return nil, err
	}
	tpl := v.(*ast.ResolvedTemplate)
	if shared && tpl.Dynamic {
		// The in-flight result was resolved against another caller's
		// variables; rebuild against our own.
		return build()
	}
	return tpl, nil
}
