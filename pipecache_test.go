package vkframe_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/internal/fakegpu"
)

func testPass() vkframe.PassInfo {
	return vkframe.PassInfo{Handle: 77, Key: 0x1234}
}

func TestPipelineCacheDeduplicatesWithinRequest(t *testing.T) {
	dev := fakegpu.New()
	cache := vkframe.NewPipelineCache(dev, nil)

	hashes, err := cache.Request(testPass(), vkframe.DefaultState(),
		[]vkframe.ShaderSet{shaderSet("a"), shaderSet("a"), shaderSet("b")})
	require.NoError(t, err)
	require.Len(t, hashes, 3)
	assert.Equal(t, hashes[0], hashes[1])
	assert.NotEqual(t, hashes[0], hashes[2])

	assert.Equal(t, 1, cache.CompileCalls())
	assert.Equal(t, 2, cache.Len())
	batches := dev.PipelineBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, vkframe.PassHandle(77), batches[0][0].Pass)
}

func TestPipelineCacheCompilesOnlyNewSets(t *testing.T) {
	dev := fakegpu.New()
	cache := vkframe.NewPipelineCache(dev, nil)
	state := vkframe.DefaultState()

	first, err := cache.Request(testPass(), state, []vkframe.ShaderSet{shaderSet("a"), shaderSet("b")})
	require.NoError(t, err)
	b := cache.Pipeline(first[1])
	second, err := cache.Request(testPass(), state, []vkframe.ShaderSet{shaderSet("b"), shaderSet("c")})
	require.NoError(t, err)

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, b, cache.Pipeline(second[0]))
	assert.NotEqual(t, b.Pipeline, cache.Pipeline(second[1]).Pipeline)
	assert.Equal(t, 2, cache.CompileCalls())
	assert.Equal(t, 3, cache.Len())
	batches := dev.PipelineBatches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[1], 1)

	// nothing new, nothing compiled
	_, err = cache.Request(testPass(), state, []vkframe.ShaderSet{shaderSet("c"), shaderSet("a")})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.CompileCalls())
	assert.Equal(t, 2, dev.Count("CreateGraphicsPipelines"))
}

func TestPipelineCacheHashInputs(t *testing.T) {
	cache := vkframe.NewPipelineCache(fakegpu.New(), nil)
	set := []vkframe.ShaderSet{shaderSet("a")}
	hash := func(pass vkframe.PassInfo, state vkframe.FixedFunctionState, sets []vkframe.ShaderSet) vkframe.Hash {
		t.Helper()
		h, err := cache.Request(pass, state, sets)
		require.NoError(t, err)
		return h[0]
	}

	base := hash(testPass(), vkframe.DefaultState(), set)

	culled := vkframe.DefaultState()
	culled.CullMode = vkframe.CullBack
	assert.NotEqual(t, base, hash(testPass(), culled, set))

	otherPass := testPass()
	otherPass.Key++
	assert.NotEqual(t, base, hash(otherPass, vkframe.DefaultState(), set))

	// the pass handle is not part of the key
	samePassNewHandle := testPass()
	samePassNewHandle.Handle = 78
	assert.Equal(t, base, hash(samePassNewHandle, vkframe.DefaultState(), set))

	withVertices := vkframe.DefaultState()
	withVertices.Vertex.Bindings = []vkframe.VertexBinding{{Binding: 0, Stride: 12}}
	assert.NotEqual(t, base, hash(testPass(), withVertices, set))

	pushed := shaderSet("a")
	pushed.PushConstants[0].Size = 128
	assert.NotEqual(t, base, hash(testPass(), vkframe.DefaultState(), []vkframe.ShaderSet{pushed}))

	entry := shaderSet("a")
	entry.Stages[0].Entry = "vs_main"
	assert.NotEqual(t, base, hash(testPass(), vkframe.DefaultState(), []vkframe.ShaderSet{entry}))
}

func TestPipelineCacheDeterministic(t *testing.T) {
	sets := []vkframe.ShaderSet{shaderSet("a"), shaderSet("b")}

	first, err := vkframe.NewPipelineCache(fakegpu.New(), nil).Request(testPass(), vkframe.DefaultState(), sets)
	require.NoError(t, err)
	second, err := vkframe.NewPipelineCache(fakegpu.New(), nil).Request(testPass(), vkframe.DefaultState(), sets)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPipelineCacheNoCollisionsOverWorkingSet(t *testing.T) {
	dev := fakegpu.New()
	cache := vkframe.NewPipelineCache(dev, nil)

	const n = 2000
	sets := make([]vkframe.ShaderSet, n)
	for i := range sets {
		sets[i] = shaderSet(fmt.Sprintf("shader-%d", i))
	}
	hashes, err := cache.Request(testPass(), vkframe.DefaultState(), sets)
	require.NoError(t, err)

	seen := make(map[vkframe.Hash]bool, n)
	for _, h := range hashes {
		seen[h] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, cache.Len())
	assert.Equal(t, 1, cache.CompileCalls())
}

func TestPipelineCachePipeline(t *testing.T) {
	cache := vkframe.NewPipelineCache(fakegpu.New(), nil)
	hashes, err := cache.Request(testPass(), vkframe.DefaultState(), []vkframe.ShaderSet{shaderSet("a")})
	require.NoError(t, err)

	e := cache.Pipeline(hashes[0])
	assert.Equal(t, hashes[0], e.Hash)
	assert.NotZero(t, e.Pipeline)
	assert.NotZero(t, e.Layout)

	looked, ok := cache.Lookup(hashes[0])
	assert.True(t, ok)
	assert.Equal(t, e, looked)

	_, ok = cache.Lookup(hashes[0] + 1)
	assert.False(t, ok)
}

func TestPipelineCacheMissPanics(t *testing.T) {
	cache := vkframe.NewPipelineCache(fakegpu.New(), nil)
	assert.Panics(t, func() { cache.Pipeline(vkframe.Hash(42)) })
}

func TestPipelineCacheCompileFailure(t *testing.T) {
	dev := fakegpu.New()
	dev.FailOn("CreateGraphicsPipelines", vkframe.ErrCompileFailed)
	cache := vkframe.NewPipelineCache(dev, nil)

	_, err := cache.Request(testPass(), vkframe.DefaultState(), []vkframe.ShaderSet{shaderSet("a"), shaderSet("b")})
	assert.ErrorIs(t, err, vkframe.ErrCompileFailed)
	assert.True(t, vkframe.IsDeviceFailure(err))
	assert.Zero(t, cache.Len())
	assert.Zero(t, dev.Live("layout"))
	assert.Zero(t, cache.CompileCalls())

	_, err = cache.Request(testPass(), vkframe.DefaultState(), []vkframe.ShaderSet{shaderSet("a")})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1, cache.CompileCalls())
	assert.Equal(t, 2, dev.Count("CreateGraphicsPipelines"))
}

func TestPipelineCacheRejectsEmptySet(t *testing.T) {
	cache := vkframe.NewPipelineCache(fakegpu.New(), nil)
	_, err := cache.Request(testPass(), vkframe.DefaultState(), []vkframe.ShaderSet{{}})
	assert.Error(t, err)
}

func TestPipelineCacheDestroy(t *testing.T) {
	dev := fakegpu.New()
	cache := vkframe.NewPipelineCache(dev, nil)
	_, err := cache.Request(testPass(), vkframe.DefaultState(), []vkframe.ShaderSet{shaderSet("a"), shaderSet("b")})
	require.NoError(t, err)
	require.Equal(t, 2, dev.Live("pipeline"))

	require.NoError(t, cache.Destroy())
	assert.Zero(t, cache.Len())
	assert.Zero(t, dev.Live("pipeline"))
	assert.Zero(t, dev.Live("layout"))
}
