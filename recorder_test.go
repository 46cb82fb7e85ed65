package vkframe_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/internal/fakegpu"
)

func newRecorder(t *testing.T) (*fakegpu.Device, *vkframe.Target, *vkframe.Recorder) {
	t.Helper()
	dev := fakegpu.New()
	target := newTarget(t, dev)
	rec, err := vkframe.NewRecorder(dev, dev.Queues(), 2, nil)
	require.NoError(t, err)
	return dev, target, rec
}

func recordSecondary(t *testing.T, rec *vkframe.Recorder, slot int, frame vkframe.FrameTarget) *vkframe.Secondary {
	t.Helper()
	sec, err := rec.NewSecondary(slot, 0)
	require.NoError(t, err)
	sec.Draw(3, 1, 0, 0)
	return sec
}

func TestRecorderExecutesInRecordingOrder(t *testing.T) {
	dev, target, rec := newRecorder(t)
	frame := target.Frame(0)

	require.NoError(t, rec.BeginPrimary(0, frame))
	a := recordSecondary(t, rec, 0, frame)
	b := recordSecondary(t, rec, 0, frame)
	c := recordSecondary(t, rec, 0, frame)
	require.NoError(t, rec.RecordSecondary(0, b, frame))
	require.NoError(t, rec.RecordSecondary(0, a, frame))
	require.NoError(t, rec.RecordSecondary(0, c, frame))
	require.NoError(t, rec.EndPrimary(0))

	calls := dev.CallsOf("CmdExecuteCommands")
	require.Len(t, calls, 1)
	assert.Equal(t, []uint64{
		uint64(rec.Primary(0)),
		uint64(b.Handle()),
		uint64(a.Handle()),
		uint64(c.Handle()),
	}, calls[0].Args)

	// one pass per primary buffer
	assert.Equal(t, []string{"CmdBeginPass", "CmdExecuteCommands", "CmdEndPass"},
		dev.Ops("CmdBeginPass", "CmdExecuteCommands", "CmdEndPass"))

	begin := dev.CallsOf("CmdBeginPass")[0]
	assert.Equal(t, uint64(frame.Pass.Handle), begin.Args[1])
	assert.Equal(t, uint64(frame.Framebuffer), begin.Args[2])
}

func TestRecorderSecondaryInheritsPass(t *testing.T) {
	dev, target, rec := newRecorder(t)
	frame := target.Frame(2)

	require.NoError(t, rec.BeginPrimary(1, frame))
	sec := recordSecondary(t, rec, 1, frame)

	var begin *fakegpu.Call
	for _, c := range dev.CallsOf("BeginCommandBuffer") {
		if c.Args[0] == uint64(sec.Handle()) {
			c := c
			begin = &c
		}
	}
	require.NotNil(t, begin)
	assert.Equal(t, []uint64{uint64(sec.Handle()), uint64(frame.Pass.Handle), uint64(frame.Framebuffer)}, begin.Args)
}

func TestRecorderEmptyPrimary(t *testing.T) {
	dev, target, rec := newRecorder(t)

	require.NoError(t, rec.BeginPrimary(0, target.Frame(0)))
	require.NoError(t, rec.EndPrimary(0))

	assert.Zero(t, dev.Count("CmdExecuteCommands"))
	assert.Equal(t, 1, dev.Count("CmdBeginPass"))
	assert.Equal(t, 1, dev.Count("CmdEndPass"))
}

func TestRecorderTargetMismatch(t *testing.T) {
	_, target, rec := newRecorder(t)

	require.NoError(t, rec.BeginPrimary(0, target.Frame(0)))
	sec := recordSecondary(t, rec, 0, target.Frame(0))

	err := rec.RecordSecondary(0, sec, target.Frame(1))
	require.Error(t, err)
	assert.True(t, vkframe.IsContractViolation(err))

	var ce *vkframe.ContractError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "RecordSecondary", ce.Op)
}

func TestRecorderWrongSlot(t *testing.T) {
	_, target, rec := newRecorder(t)

	require.NoError(t, rec.BeginPrimary(0, target.Frame(0)))
	require.NoError(t, rec.BeginPrimary(1, target.Frame(1)))
	sec := recordSecondary(t, rec, 0, target.Frame(0))

	err := rec.RecordSecondary(1, sec, target.Frame(1))
	assert.True(t, vkframe.IsContractViolation(err))
}

func TestRecorderUnrecordedSecondary(t *testing.T) {
	_, target, rec := newRecorder(t)

	require.NoError(t, rec.BeginPrimary(0, target.Frame(0)))
	recordSecondary(t, rec, 0, target.Frame(0))

	err := rec.EndPrimary(0)
	assert.True(t, vkframe.IsContractViolation(err))
}

func TestRecorderRecordTwice(t *testing.T) {
	_, target, rec := newRecorder(t)
	frame := target.Frame(0)

	require.NoError(t, rec.BeginPrimary(0, frame))
	sec := recordSecondary(t, rec, 0, frame)
	require.NoError(t, rec.RecordSecondary(0, sec, frame))
	assert.True(t, vkframe.IsContractViolation(rec.RecordSecondary(0, sec, frame)))
}

func TestRecorderPrimaryLifecycle(t *testing.T) {
	_, target, rec := newRecorder(t)

	_, err := rec.NewSecondary(0, 0)
	assert.True(t, vkframe.IsContractViolation(err), "secondary before BeginPrimary")
	assert.True(t, vkframe.IsContractViolation(rec.EndPrimary(0)), "end before begin")

	require.NoError(t, rec.BeginPrimary(0, target.Frame(0)))
	assert.True(t, vkframe.IsContractViolation(rec.BeginPrimary(0, target.Frame(0))), "begin twice")
	assert.True(t, vkframe.IsContractViolation(rec.Submit(0, 0, 0, 0)), "submit while open")
}

func TestRecorderFlushSubmitsBeforePresent(t *testing.T) {
	dev, target, rec := newRecorder(t)

	require.NoError(t, rec.BeginPrimary(0, target.Frame(0)))
	require.NoError(t, rec.EndPrimary(0))
	require.NoError(t, rec.Submit(0, 11, 12, 13))
	rec.Present(target.Swapchain(), 0, 12)

	subs, presents := rec.Pending()
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, presents)

	stale, err := rec.Flush()
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, []string{"QueueSubmit", "QueuePresent"}, dev.Ops("QueueSubmit", "QueuePresent"))

	submitted := dev.Submissions()
	require.Len(t, submitted, 1)
	assert.Equal(t, []vkframe.CommandBufferHandle{rec.Primary(0)}, submitted[0].Buffers)
	assert.Equal(t, []vkframe.SemaphoreHandle{11}, submitted[0].Wait)
	assert.Equal(t, []vkframe.SemaphoreHandle{12}, submitted[0].Signal)
	assert.Equal(t, vkframe.FenceHandle(13), submitted[0].HostSignal)

	presented := dev.Presents()
	require.Len(t, presented, 1)
	assert.Equal(t, []vkframe.SemaphoreHandle{12}, presented[0].Wait)

	subs, presents = rec.Pending()
	assert.Zero(t, subs)
	assert.Zero(t, presents)
}

func TestRecorderFlushReportsStalePresent(t *testing.T) {
	dev, target, rec := newRecorder(t)
	dev.ForceStalePresent(1)

	rec.Present(target.Swapchain(), 0, 0)
	stale, err := rec.Flush()
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Zero(t, dev.Count("QueueSubmit"))
}

func TestRecorderFlushSubmitFailure(t *testing.T) {
	dev, target, rec := newRecorder(t)
	dev.FailOn("QueueSubmit", vkframe.ErrDeviceLost)

	require.NoError(t, rec.BeginPrimary(0, target.Frame(0)))
	require.NoError(t, rec.EndPrimary(0))
	require.NoError(t, rec.Submit(0, 0, 0, 0))
	rec.Present(target.Swapchain(), 0, 0)

	_, err := rec.Flush()
	assert.ErrorIs(t, err, vkframe.ErrDeviceLost)
	assert.Zero(t, dev.Count("QueuePresent"))

	subs, presents := rec.Pending()
	assert.Zero(t, subs)
	assert.Zero(t, presents)
}

func TestRecorderRecyclesSecondaries(t *testing.T) {
	dev, target, rec := newRecorder(t)
	frame := target.Frame(0)

	var handles []vkframe.CommandBufferHandle
	for i := 0; i < 2; i++ {
		require.NoError(t, rec.BeginPrimary(0, frame))
		sec := recordSecondary(t, rec, 0, frame)
		require.NoError(t, rec.RecordSecondary(0, sec, frame))
		require.NoError(t, rec.EndPrimary(0))
		handles = append(handles, sec.Handle())
	}

	assert.Equal(t, handles[0], handles[1])
	// two primaries plus one secondary
	assert.Equal(t, 3, dev.Count("AllocateCommandBuffers"))
}

func TestRecorderWorkers(t *testing.T) {
	dev, target, rec := newRecorder(t)
	require.NoError(t, rec.SetRecordingWorkers(3))
	assert.Equal(t, 3, rec.Workers())
	// one primary pool, three secondary pools per slot
	assert.Equal(t, 7, dev.Live("pool"))

	require.NoError(t, rec.BeginPrimary(0, target.Frame(0)))
	sec, err := rec.NewSecondary(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sec.Worker())

	_, err = rec.NewSecondary(0, 3)
	assert.True(t, vkframe.IsContractViolation(err))

	assert.Error(t, rec.SetRecordingWorkers(0))
}

func TestRecorderDestroy(t *testing.T) {
	dev, _, rec := newRecorder(t)
	require.NoError(t, rec.AddSlots(1))
	assert.Equal(t, 3, rec.Slots())

	require.NoError(t, rec.Destroy())
	assert.Zero(t, dev.Live("pool"))
	assert.Zero(t, dev.Live("commandbuffer"))
}
