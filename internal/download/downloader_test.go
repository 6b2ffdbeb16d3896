package download

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cyfs-core/bdt-ndn/internal/chunkcache"
	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/session"
)

type fakeLoader struct {
	data []byte
	err  error
}

func (f *fakeLoader) LoadLocal(ctx context.Context, chunkID ids.ChunkId) ([]byte, error) {
	return f.data, f.err
}

type fakeChannel struct {
	sess *session.Session
	err  error
}

func (f *fakeChannel) Download(ctx context.Context, chunkID ids.ChunkId, source Source, cache *chunkcache.ChunkCache) (*session.Session, error) {
	return f.sess, f.err
}

type fakeEmitter struct{}

func (fakeEmitter) EmitSnCall(ctx context.Context, target ids.DeviceId, chunkID ids.ChunkId, seq uint64) error {
	return nil
}

func testDeviceID(name string) ids.DeviceId {
	return ids.NewObjectId(ids.ObjectTypeDevice, []byte(name))
}

func TestDownloaderFinishesFromLocalStorage(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 500)
	cid := ids.NewChunkId(data)

	d := New(context.Background(), cid, 128, &fakeLoader{data: data}, &fakeChannel{})

	deadline := time.After(time.Second)
	for d.State() != StateFinished {
		select {
		case <-deadline:
			t.Fatal("downloader never reached Finished")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if !d.Cache().Loaded() {
		t.Fatal("cache should be loaded once Finished")
	}
}

func TestDownloaderOnDrainPublishesSession(t *testing.T) {
	cid := ids.NewChunkId(bytes.Repeat([]byte("b"), 1000))
	loader := &fakeLoader{err: cyfserr.New(cyfserr.NotFound, "no local copy")}

	sess := session.New(cid, testDeviceID("peer-1"), 1, fakeEmitter{}, time.Minute, time.Second)
	channel := &fakeChannel{sess: sess}

	d := New(context.Background(), cid, 256, loader, channel)
	waitState(t, d, StateDownloading)

	sources := NewSourceSet()
	sources.Add(Source{Device: testDeviceID("peer-1")})

	speed, err := d.OnDrain(context.Background(), sources)
	if err != nil {
		t.Fatal(err)
	}
	if speed != 0 {
		t.Fatalf("fresh session should report zero speed, got %v", speed)
	}

	// A second drain with the same source set should reuse the published
	// session rather than opening a new channel.
	speed2, err := d.OnDrain(context.Background(), sources)
	if err != nil {
		t.Fatal(err)
	}
	_ = speed2
}

func TestDownloaderOnDrainCancelsWhenSourceRemoved(t *testing.T) {
	cid := ids.NewChunkId(bytes.Repeat([]byte("c"), 1000))
	loader := &fakeLoader{err: cyfserr.New(cyfserr.NotFound, "no local copy")}

	sess := session.New(cid, testDeviceID("peer-2"), 1, fakeEmitter{}, time.Minute, time.Second)
	channel := &fakeChannel{sess: sess}

	d := New(context.Background(), cid, 256, loader, channel)
	waitState(t, d, StateDownloading)

	sources := NewSourceSet()
	sources.Add(Source{Device: testDeviceID("peer-2")})
	if _, err := d.OnDrain(context.Background(), sources); err != nil {
		t.Fatal(err)
	}

	sources.Remove(testDeviceID("peer-2"))
	if _, err := d.OnDrain(context.Background(), sources); err != nil {
		t.Fatal(err)
	}
	if sess.State() != session.StateCanceled {
		t.Fatal("session should be canceled once its source leaves the set")
	}
}

func TestDownloaderOnDrainNoSourcesReturnsZero(t *testing.T) {
	cid := ids.NewChunkId(bytes.Repeat([]byte("d"), 500))
	loader := &fakeLoader{err: cyfserr.New(cyfserr.NotFound, "no local copy")}
	d := New(context.Background(), cid, 128, loader, &fakeChannel{})
	waitState(t, d, StateDownloading)

	speed, err := d.OnDrain(context.Background(), NewSourceSet())
	if err != nil {
		t.Fatal(err)
	}
	if speed != 0 {
		t.Fatalf("no candidate sources should yield zero speed, got %v", speed)
	}
}

func waitState(t *testing.T, d *Downloader, want State) {
	t.Helper()
	deadline := time.After(time.Second)
	for d.State() != want {
		select {
		case <-deadline:
			t.Fatalf("downloader never reached state %v", want)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
