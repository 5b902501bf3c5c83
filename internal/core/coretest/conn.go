// Package coretest provides an in-memory core.Connection for tests.
package coretest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Ping/internal/core"
	"github.com/dkeye/Ping/internal/domain"
)

type Conn struct {
	id core.ConnID

	mu     sync.Mutex
	frames []core.Frame
	fail   error
	closes int
}

func NewConn(id string) *Conn {
	return &Conn{id: core.ConnID(id)}
}

func (c *Conn) ID() core.ConnID { return c.id }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return domain.ErrConnClosed
	}
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

// FailWith makes every later TrySend return err.
func (c *Conn) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Messages decodes every received frame.
func (c *Conn) Messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			panic(err)
		}
		out = append(out, m)
	}
	return out
}

// OfType filters Messages by their "type" field.
func (c *Conn) OfType(kind domain.Kind) []map[string]any {
	var out []map[string]any
	for _, m := range c.Messages() {
		if m["type"] == string(kind) {
			out = append(out, m)
		}
	}
	return out
}

// LastPresence returns the count of the latest presence frame, or -1.
func (c *Conn) LastPresence() int {
	p := c.OfType(domain.KindPresence)
	if len(p) == 0 {
		return -1
	}
	return int(p[len(p)-1]["count"].(float64))
}
