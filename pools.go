package vkframe

import "github.com/pkg/errors"

// bufferPool allocates command buffers from one command pool and recycles
// them after reset. It is not safe for concurrent use: with multi-threaded
// recording every worker needs its own pool.
type bufferPool struct {
	dev     CommandDevice
	pool    CommandPoolHandle
	level   CommandLevel
	buffers []CommandBufferHandle
	count   int
}

func newBufferPool(dev CommandDevice, family uint32, level CommandLevel) (*bufferPool, error) {
	pool, err := dev.CreateCommandPool(family)
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	return &bufferPool{dev: dev, pool: pool, level: level}, nil
}

// reset marks every buffer recyclable. The caller guarantees the GPU is
// done with them.
func (p *bufferPool) reset() {
	p.count = 0
}

// next returns a fresh or recycled buffer in the reset state.
func (p *bufferPool) next() (CommandBufferHandle, error) {
	if p.count < len(p.buffers) {
		buf := p.buffers[p.count]
		if err := p.dev.ResetCommandBuffer(buf); err != nil {
			return 0, errors.Wrap(err, "reset command buffer")
		}
		p.count++
		return buf, nil
	}
	bufs, err := p.dev.AllocateCommandBuffers(p.pool, p.level, 1)
	if err != nil {
		return 0, errors.Wrap(err, "allocate command buffer")
	}
	p.buffers = append(p.buffers, bufs[0])
	p.count++
	return bufs[0], nil
}

// destroy frees the pool together with its buffers.
func (p *bufferPool) destroy() {
	p.dev.DestroyCommandPool(p.pool)
	p.buffers = nil
	p.count = 0
}
