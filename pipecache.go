package vkframe

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// Hash is the content key of a cached pipeline.
type Hash uint64

func (h Hash) String() string { return fmt.Sprintf("%016x", uint64(h)) }

// Entry is a compiled pipeline together with its layout.
type Entry struct {
	Pipeline PipelineHandle
	Layout   LayoutHandle
	Hash     Hash
}

type cacheEntry struct {
	Entry
	verify uint64
}

// PipelineCache compiles graphics pipelines on first request and keeps
// them until Destroy. Entries are never evicted.
type PipelineCache struct {
	dev PipelineDevice
	log *slog.Logger

	mu       sync.RWMutex
	entries  map[Hash]cacheEntry
	compiles int
}

func NewPipelineCache(dev PipelineDevice, log *slog.Logger) *PipelineCache {
	return &PipelineCache{
		dev:     dev,
		log:     orDefault(log),
		entries: make(map[Hash]cacheEntry),
	}
}

type compileJob struct {
	hash   Hash
	verify uint64
	set    ShaderSet
}

// Request returns one hash per shader set, compiling every set the cache
// has not seen in a single batched call. Sets repeated within the request
// are compiled once. If compilation fails nothing is added.
func (c *PipelineCache) Request(pass PassInfo, state FixedFunctionState, sets []ShaderSet) ([]Hash, error) {
	hashes := make([]Hash, len(sets))

	c.mu.Lock()
	defer c.mu.Unlock()

	var jobs []compileJob
	seen := make(map[Hash]uint64, len(sets))
	for i, set := range sets {
		if len(set.Stages) == 0 {
			return nil, errors.Errorf("shader set %d has no stages", i)
		}
		data := encodeRequest(pass.Key, state, set)
		h := Hash(xxhash.Sum64(data))
		v := verifyDigest(data)
		hashes[i] = h

		if e, ok := c.entries[h]; ok {
			if e.verify != v {
				Fatal(contractf("PipelineCache.Request", "hash collision on %s", h))
			}
			continue
		}
		if prev, ok := seen[h]; ok {
			if prev != v {
				Fatal(contractf("PipelineCache.Request", "hash collision on %s within one request", h))
			}
			continue
		}
		seen[h] = v
		jobs = append(jobs, compileJob{hash: h, verify: v, set: set})
	}
	if len(jobs) == 0 {
		return hashes, nil
	}

	layouts := make([]LayoutHandle, 0, len(jobs))
	configs := make([]PipelineConfig, 0, len(jobs))
	for _, job := range jobs {
		layout, err := c.dev.CreatePipelineLayout(LayoutConfig{PushConstants: job.set.PushConstants})
		if err != nil {
			c.releaseLayouts(layouts)
			return nil, errors.Wrap(err, "create pipeline layout")
		}
		layouts = append(layouts, layout)
		configs = append(configs, PipelineConfig{
			Pass:   pass.Handle,
			Layout: layout,
			State:  state,
			Stages: job.set.Stages,
		})
	}

	pipelines, err := c.dev.CreateGraphicsPipelines(configs)
	if err != nil {
		c.releaseLayouts(layouts)
		return nil, errors.Wrapf(err, "compile %d pipelines", len(configs))
	}
	c.compiles++
	for i, job := range jobs {
		c.entries[job.hash] = cacheEntry{
			Entry:  Entry{Pipeline: pipelines[i], Layout: layouts[i], Hash: job.hash},
			verify: job.verify,
		}
	}
	c.log.Debug("vkframe: pipelines compiled", "count", len(jobs), "cached", len(c.entries))
	return hashes, nil
}

func (c *PipelineCache) releaseLayouts(layouts []LayoutHandle) {
	for _, l := range layouts {
		c.dev.DestroyPipelineLayout(l)
	}
}

// Pipeline returns the entry for h. Asking for a hash that Request never
// returned is a contract violation and panics.
func (c *PipelineCache) Pipeline(h Hash) Entry {
	c.mu.RLock()
	e, ok := c.entries[h]
	c.mu.RUnlock()
	if !ok {
		Fatal(contractf("PipelineCache.Pipeline", "no pipeline cached for %s", h))
	}
	return e.Entry
}

func (c *PipelineCache) Lookup(h Hash) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[h]
	return e.Entry, ok
}

func (c *PipelineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CompileCalls counts batched compile calls that succeeded. A failed batch
// is not counted, so retrying it counts once.
func (c *PipelineCache) CompileCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compiles
}

// Destroy waits for the device to go idle and destroys every entry.
func (c *PipelineCache) Destroy() error {
	err := c.dev.WaitIdle()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		c.dev.DestroyPipeline(e.Pipeline)
		c.dev.DestroyPipelineLayout(e.Layout)
	}
	c.entries = make(map[Hash]cacheEntry)
	return errors.Wrap(err, "wait idle before pipeline cache destroy")
}
