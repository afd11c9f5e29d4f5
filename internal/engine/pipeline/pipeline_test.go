package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/fault"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	handler  capture.FrameHandler
	startErr error
	stopErr  error
	stopped  bool
}

func (s *fakeSource) Start(h capture.FrameHandler) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return s.stopErr
}

func (s *fakeSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *fakeSource) deliver(n int) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	for i := 0; i < n; i++ {
		h(capture.Frame{Timestamp: time.Unix(int64(i), 0), Data: []byte{byte(i)}})
	}
}

type collector struct {
	mu     sync.Mutex
	frames []capture.Frame
}

func (c *collector) handle(f capture.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestPipeline_Backpressure(t *testing.T) {
	var c collector
	p := New(&fakeSource{}, c.handle, Options{MaxQueueSize: 10})

	for i := 0; i < 13; i++ {
		p.Enqueue(capture.Frame{Data: []byte{byte(i)}})
	}
	stats := p.Stats()
	assert.EqualValues(t, 13, stats.Total)
	assert.Equal(t, 10, stats.Queued)
	assert.EqualValues(t, 3, stats.Dropped)
	assert.Equal(t, "Total: 13, Queued: 10/10, Errors: 0, Dropped: 3", stats.String())

	// Stop drains what was queued, in order.
	require.NoError(t, p.Stop())
	require.Equal(t, 10, c.count())
	for i, f := range c.frames {
		assert.Equal(t, byte(i), f.Data[0])
	}
	assert.Zero(t, p.Stats().Queued)
}

func TestPipeline_ConcurrentEnqueue(t *testing.T) {
	p := New(&fakeSource{}, func(capture.Frame) error { return nil }, Options{MaxQueueSize: 5000})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				p.Enqueue(capture.Frame{})
			}
		}()
	}
	wg.Wait()

	stats := p.Stats()
	assert.EqualValues(t, 8000, stats.Total)
	assert.Equal(t, 5000, stats.Queued)
	assert.EqualValues(t, 3000, stats.Dropped)
}

func TestPipeline_DrainsLiveFrames(t *testing.T) {
	src := &fakeSource{}
	var c collector
	p := New(src, c.handle, Options{IdleDelay: time.Millisecond})
	require.NoError(t, p.Start())

	src.deliver(100)
	assert.Eventually(t, func() bool { return c.count() == 100 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	assert.True(t, src.stopped)
	assert.EqualValues(t, 100, p.Stats().Total)
}

func TestPipeline_RecoverableFaults(t *testing.T) {
	src := &fakeSource{}
	var handled sync.WaitGroup
	handled.Add(3)
	p := New(src, func(f capture.Frame) error {
		defer handled.Done()
		switch f.Data[0] {
		case 0:
			return fault.New(fault.KindParse, "frame has no network layer")
		case 1:
			panic("decoder bug")
		}
		return nil
	}, Options{IdleDelay: time.Millisecond})
	require.NoError(t, p.Start())

	src.deliver(3)
	handled.Wait()
	require.NoError(t, p.Stop())
	assert.EqualValues(t, 2, p.Stats().Errors)
}

func TestPipeline_FatalFaultStops(t *testing.T) {
	src := &fakeSource{}
	release := make(chan struct{})
	var c collector
	p := New(src, func(f capture.Frame) error {
		if f.Data[0] == 0 {
			<-release
			return fault.New(fault.KindConsistency, "flow table corrupted")
		}
		return c.handle(f)
	}, Options{IdleDelay: time.Millisecond})
	require.NoError(t, p.Start())

	src.deliver(5)
	close(release)

	select {
	case err := <-p.Err():
		assert.Equal(t, fault.KindConsistency, fault.GetKind(err))
	case <-time.After(2 * time.Second):
		t.Fatal("fatal fault was not reported")
	}

	err := p.Stop()
	assert.True(t, fault.Is(err, fault.KindConsistency))
	assert.Zero(t, c.count(), "frames after a fatal fault must not be processed")
	assert.Zero(t, p.Stats().Errors)
}

func TestPipeline_StartFailure(t *testing.T) {
	p := New(&fakeSource{startErr: errors.New("permission denied")}, func(capture.Frame) error { return nil }, Options{})

	err := p.Start()
	require.Error(t, err)
	assert.Equal(t, fault.KindCapture, fault.GetKind(err))
	assert.NoError(t, p.Stop())
}

func TestPipeline_StopFailureIsCaptureFault(t *testing.T) {
	cause := errors.New("device gone")
	src := &fakeSource{stopErr: cause}
	c := &collector{}
	p := New(src, c.handle, Options{IdleDelay: time.Hour})
	require.NoError(t, p.Start())
	src.deliver(3)

	err := p.Stop()
	require.Error(t, err)
	assert.Equal(t, fault.KindCapture, fault.GetKind(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, c.count(), "queued frames are processed despite the failure")
	assert.Equal(t, err, p.Stop())

	select {
	case got := <-p.Err():
		assert.Equal(t, err, got)
	default:
		t.Fatal("stop failure not delivered on Err")
	}
}
