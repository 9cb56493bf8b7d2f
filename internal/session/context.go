package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yousuf/stackmap/internal/sourcemap"
)

// ErrMapperNotFound is returned when no mapper is bound under a name
var ErrMapperNotFound = errors.New("source map not loaded")

// Context represents a session context with the source maps loaded into it
type Context struct {
	SessionID string

	mappers      map[string]*sourcemap.Mapper
	lastAccessed time.Time
	mu           sync.RWMutex
}

// NewContext creates a new session context
func NewContext(sessionID string) *Context {
	return &Context{
		SessionID:    sessionID,
		mappers:      make(map[string]*sourcemap.Mapper),
		lastAccessed: time.Now(),
	}
}

// Bind stores m under name, replacing any mapper already bound to it.
// It reports whether a previous mapper was replaced.
func (c *Context) Bind(name string, m *sourcemap.Mapper) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, replaced := c.mappers[name]
	c.mappers[name] = m
	return replaced
}

// Mapper returns the mapper bound under name
func (c *Context) Mapper(name string) (*sourcemap.Mapper, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.mappers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMapperNotFound, name)
	}
	return m, nil
}

// Unbind drops the mapper bound under name
func (c *Context) Unbind(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.mappers[name]
	delete(c.mappers, name)
	return ok
}

// Names returns the bound mapper names, sorted
func (c *Context) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.mappers))
	for name := range c.mappers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UpdateLastAccessed records that the session has just been used
func (c *Context) UpdateLastAccessed() {
	c.mu.Lock()
	c.lastAccessed = time.Now()
	c.mu.Unlock()
}

// LastAccessed returns when the session was last used
func (c *Context) LastAccessed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAccessed
}

func (c *Context) clear() {
	c.mu.Lock()
	c.mappers = make(map[string]*sourcemap.Mapper)
	c.mu.Unlock()
}
