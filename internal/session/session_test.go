package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

type fakeEmitter struct {
	calls int32
	fail  bool
}

func (f *fakeEmitter) EmitSnCall(ctx context.Context, target ids.DeviceId, chunkID ids.ChunkId, seq uint64) error {
	atomic.AddInt32(&f.calls, 1)
	if f.fail {
		return cyfserr.New(cyfserr.IoError, "send failed")
	}
	return nil
}

func testChunkID() ids.ChunkId {
	return ids.NewChunkId([]byte("some chunk bytes"))
}

func testDeviceID(name string) ids.DeviceId {
	return ids.NewObjectId(ids.ObjectTypeDevice, []byte(name))
}

func TestSessionWaitTransitionsToRunningAndEmits(t *testing.T) {
	emitter := &fakeEmitter{}
	s := New(testChunkID(), testDeviceID("peer-1"), 1, emitter, time.Minute, time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.Wait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	if s.State() != StateRunning {
		t.Fatalf("state = %v, want Running", s.State())
	}
	if atomic.LoadInt32(&emitter.calls) != 1 {
		t.Fatalf("emitter called %d times, want 1", emitter.calls)
	}

	if err := s.Respond([]byte("ok"), "ep-1"); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	if s.State() != StateResponded {
		t.Fatalf("state = %v, want Responded", s.State())
	}
}

func TestSessionMultipleWaitersGetSameResult(t *testing.T) {
	emitter := &fakeEmitter{}
	s := New(testChunkID(), testDeviceID("peer-1"), 1, emitter, time.Minute, time.Second)

	results := make([]Result, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			r, _ := s.Wait(context.Background())
			results[idx] = r
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	if err := s.Respond([]byte("payload"), "ep-9"); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	for i, r := range results {
		if r.State != StateResponded || r.Endpoint != "ep-9" {
			t.Fatalf("waiter %d result = %+v", i, r)
		}
	}
	if atomic.LoadInt32(&emitter.calls) != 1 {
		t.Fatalf("emitter should only fire once regardless of waiter count, got %d", emitter.calls)
	}
}

func TestSessionTimeoutViaOnTimeEscape(t *testing.T) {
	emitter := &fakeEmitter{}
	s := New(testChunkID(), testDeviceID("peer-1"), 1, emitter, 100*time.Millisecond, 10*time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	var result Result
	go func() {
		defer wg.Done()
		result, _ = s.Wait(context.Background())
	}()
	time.Sleep(5 * time.Millisecond)

	base := time.Now()
	s.OnTimeEscape(context.Background(), base.Add(200*time.Millisecond))
	wg.Wait()

	if result.State != StateCanceled || result.Kind != cyfserr.Timeout {
		t.Fatalf("result = %+v, want Canceled(Timeout)", result)
	}
}

func TestSessionResendOnTicker(t *testing.T) {
	emitter := &fakeEmitter{}
	s := New(testChunkID(), testDeviceID("peer-1"), 1, emitter, time.Minute, 50*time.Millisecond)

	go func() { _, _ = s.Wait(context.Background()) }()
	time.Sleep(5 * time.Millisecond)

	base := time.Now()
	s.OnTimeEscape(context.Background(), base.Add(100*time.Millisecond))
	if atomic.LoadInt32(&emitter.calls) != 2 {
		t.Fatalf("expected a resend (2 total emits), got %d", emitter.calls)
	}
}

func TestSessionCancelIsIdempotent(t *testing.T) {
	emitter := &fakeEmitter{}
	s := New(testChunkID(), testDeviceID("peer-1"), 1, emitter, time.Minute, time.Second)
	go func() { _, _ = s.Wait(context.Background()) }()
	time.Sleep(5 * time.Millisecond)

	s.Cancel(cyfserr.Interrupted)
	s.Cancel(cyfserr.Timeout) // second cancel must not override the first terminal state
	if s.State() != StateCanceled {
		t.Fatal("state should be Canceled")
	}
}

func TestSessionWaitContextCanceled(t *testing.T) {
	emitter := &fakeEmitter{}
	s := New(testChunkID(), testDeviceID("peer-1"), 1, emitter, time.Minute, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Wait(ctx)
	if err == nil {
		t.Fatal("expected an error when the caller's context is already canceled")
	}
}

func TestSessionSpeedMetering(t *testing.T) {
	emitter := &fakeEmitter{}
	s := New(testChunkID(), testDeviceID("peer-1"), 1, emitter, time.Minute, time.Second)

	base := time.Now()
	s.RecordBytes(1000, base)
	s.RecordBytes(1000, base.Add(time.Second))

	if s.CurSpeed() <= 0 {
		t.Fatal("cur speed should be positive after two samples")
	}
	if hs := s.HistorySpeed(base.Add(2 * time.Second)); hs <= 0 {
		t.Fatal("history speed should be positive")
	}
}
