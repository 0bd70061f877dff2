// Package bufpool pools the buffers block uploads are read into.
//
// Block bodies are copied by the cache when buffered and by every backend
// before WriteBlock returns, so an upload buffer can go back to the pool as
// soon as the write completes.
//
// Buffers come in three size classes. Requests above the largest class are
// allocated directly and never pooled.
//
// Usage:
//
//	buf, err := bufpool.ReadFull(body, size)
//	defer bufpool.Put(buf)
package bufpool

import (
	"io"
	"sync"
)

// Default size classes.
const (
	DefaultSmallSize  = 4 << 10
	DefaultMediumSize = 64 << 10
	DefaultLargeSize  = 1 << 20
)

// Pool is a set of byte slice pools keyed by size class.
type Pool struct {
	classes []class
}

type class struct {
	size int
	pool *sync.Pool
}

// Config sets the size classes of a Pool. Zero fields take the defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// NewPool creates a Pool. A nil cfg uses the default classes.
func NewPool(cfg *Config) *Pool {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.SmallSize <= 0 {
		c.SmallSize = DefaultSmallSize
	}
	if c.MediumSize <= 0 {
		c.MediumSize = DefaultMediumSize
	}
	if c.LargeSize <= 0 {
		c.LargeSize = DefaultLargeSize
	}

	p := &Pool{}
	for _, size := range []int{c.SmallSize, c.MediumSize, c.LargeSize} {
		p.classes = append(p.classes, class{
			size: size,
			pool: &sync.Pool{New: func() any {
				buf := make([]byte, size)
				return &buf
			}},
		})
	}
	return p
}

// Get returns a slice of length size, backed by a pooled buffer when size
// fits a class. Return it with Put.
func (p *Pool) Get(size int) []byte {
	for _, c := range p.classes {
		if size <= c.size {
			buf := *(c.pool.Get().(*[]byte))
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its class. Buffers whose capacity matches no class
// are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for _, c := range p.classes {
		if cap(buf) == c.size {
			full := buf[:cap(buf)]
			c.pool.Put(&full)
			return
		}
	}
}

// ReadFull reads exactly size bytes from r into a pooled buffer. On error
// the buffer has already been returned.
func (p *Pool) ReadFull(r io.Reader, size int) ([]byte, error) {
	buf := p.Get(size)
	if _, err := io.ReadFull(r, buf); err != nil {
		p.Put(buf)
		return nil, err
	}
	return buf, nil
}

var defaultPool = NewPool(nil)

// Get returns a buffer from the default pool.
func Get(size int) []byte {
	return defaultPool.Get(size)
}

// Put returns a buffer to the default pool.
func Put(buf []byte) {
	defaultPool.Put(buf)
}

// ReadFull reads exactly size bytes from r into a buffer of the default
// pool.
func ReadFull(r io.Reader, size int) ([]byte, error) {
	return defaultPool.ReadFull(r, size)
}
