package system

import (
	"image"
	"sync"
)

// FramePool reuses *image.RGBA buffers keyed by bounds so the decoder and
// the capture sampler do not allocate a full canvas per frame.
type FramePool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.RWMutex
}

func NewFramePool() *FramePool {
	return &FramePool{pools: make(map[image.Rectangle]*sync.Pool)}
}

// Get returns a buffer with the given bounds. Its contents are undefined.
func (p *FramePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewRGBA(rect)
				},
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.RGBA)
}

// Put hands img back. Buffers of sizes never requested are dropped.
func (p *FramePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}
