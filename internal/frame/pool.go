package frame

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultMaxBuffers bounds the number of pixel buffers a Pool hands out at once.
const DefaultMaxBuffers = 32

// PoolStats is a point-in-time view of a Pool.
type PoolStats struct {
	Allocated   int // buffers ever created
	Outstanding int // buffers owned by live frames
	Free        int // buffers waiting for reuse
}

// Pool recycles frame pixel buffers so steady-state capture does not allocate.
type Pool struct {
	mu          sync.Mutex
	free        [][]byte
	allocated   int
	outstanding int
	max         int
	warned      bool
}

// NewPool creates a pool that warns once when more than max buffers are
// outstanding. A non-positive max uses DefaultMaxBuffers.
func NewPool(max int) *Pool {
	if max <= 0 {
		max = DefaultMaxBuffers
	}
	return &Pool{max: max}
}

// NewFrame returns a frame backed by a pooled buffer. The caller fills
// Pixels() before handing the frame on.
func (p *Pool) NewFrame(width, height int, rotation Rotation, mirrored bool) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return newFrame(p, nil, width, height, rotation, mirrored)
	}
	buf := p.get(width * height * BytesPerPixel)
	f, err := newFrame(p, buf, width, height, rotation, mirrored)
	if err != nil {
		p.put(buf)
		return nil, err
	}
	return f, nil
}

// Stats returns the current counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Allocated: p.allocated, Outstanding: p.outstanding, Free: len(p.free)}
}

func (p *Pool) get(size int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outstanding++
	if p.outstanding > p.max && !p.warned {
		p.warned = true
		log.WithField("outstanding", p.outstanding).Warn("Frame buffers are not being released")
	}

	for i := len(p.free) - 1; i >= 0; i-- {
		if cap(p.free[i]) >= size {
			buf := p.free[i][:size]
			p.free = append(p.free[:i], p.free[i+1:]...)
			return buf
		}
	}
	p.allocated++
	return make([]byte, size)
}

func (p *Pool) put(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outstanding--
	if len(p.free) < p.max {
		p.free = append(p.free, buf[:0])
	}
	if p.outstanding <= p.max {
		p.warned = false
	}
}
