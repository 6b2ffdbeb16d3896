package ndn

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// FileChunkListStreamWriter is the producer/consumer buffer the forward
// tier appends downloaded chunk bytes into and the caller reads from
// (spec.md §4.9.5). Grounded on chunkcache's waiter-set wakeup pattern
// (spec.md §4.2), generalized from "one chunk's bytes" to "an ordered
// queue of per-chunk readers summing to a declared total."
type FileChunkListStreamWriter struct {
	objectID ids.ObjectId
	total    int64

	mu       sync.Mutex
	appended int64
	queue    []io.Reader
	isEnd    bool
	err      error
	waiters  []chan struct{}
}

// NewFileChunkListStreamWriter builds a writer for objectID expecting
// exactly totalSize bytes across all appends. A zero totalSize starts
// already at end-of-stream (spec.md §8 "Zero-length chunk... decoder is
// Ready immediately" generalized to the zero-size file case).
func NewFileChunkListStreamWriter(objectID ids.ObjectId, totalSize int64) *FileChunkListStreamWriter {
	w := &FileChunkListStreamWriter{objectID: objectID, total: totalSize}
	if totalSize == 0 {
		w.isEnd = true
	}
	return w
}

// Append enqueues a stream of exactly length bytes for chunkID (spec.md
// §4.9.5 "append(chunk_id, read_stream)"). Appending past total is a
// programming error per the invariant "the writer accepts chunks whose sum
// of lengths equals total_size exactly."
func (w *FileChunkListStreamWriter) Append(chunkID ids.ChunkId, r io.Reader, length int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.isEnd {
		return cyfserr.Newf(cyfserr.InvalidInput, "stream writer: append after end for chunk %s", chunkID)
	}
	if w.appended+length > w.total {
		return cyfserr.Newf(cyfserr.InvalidInput, "stream writer: append overshoots total_size (%d+%d > %d)", w.appended, length, w.total)
	}
	w.appended += length
	w.queue = append(w.queue, r)
	if w.appended >= w.total {
		w.isEnd = true
	}
	w.wakeLocked()
	return nil
}

// AppendBuffer enqueues a whole in-memory chunk buffer (spec.md §4.9.5
// "append_buffer(chunk_id, vec)").
func (w *FileChunkListStreamWriter) AppendBuffer(chunkID ids.ChunkId, data []byte) error {
	return w.Append(chunkID, bytes.NewReader(data), int64(len(data)))
}

// Finish marks the stream complete (spec.md §4.9.5 "finish(): assert
// is_end || total_size == 0; wake").
func (w *FileChunkListStreamWriter) Finish() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if !w.isEnd && w.total != 0 {
		return cyfserr.Newf(cyfserr.ErrorState, "stream writer: finish before reaching total_size (%d/%d)", w.appended, w.total)
	}
	w.isEnd = true
	w.wakeLocked()
	return nil
}

// Error stores err for future Read calls and wakes pending readers
// (spec.md §4.9.5 "error(e): store an io::Error; wake").
func (w *FileChunkListStreamWriter) Error(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
	w.wakeLocked()
}

func (w *FileChunkListStreamWriter) wakeLocked() {
	for _, c := range w.waiters {
		close(c)
	}
	w.waiters = nil
}

// RemainSize reports total - appended at the moment of the call, exposed
// so callers/tests can assert the conservation invariant (spec.md §8
// "sum(appended_bytes) + remain_size == total_size").
func (w *FileChunkListStreamWriter) RemainSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total - w.appended
}

// Read drains queued per-chunk streams in order (spec.md §4.9.5 "As a
// Read: drain queued streams in order; return buffered data when pending
// but some progress; propagate stored errors").
func (w *FileChunkListStreamWriter) Read(p []byte) (int, error) {
	for {
		w.mu.Lock()
		if w.err != nil {
			err := w.err
			w.mu.Unlock()
			return 0, err
		}
		if len(w.queue) == 0 {
			if w.isEnd {
				w.mu.Unlock()
				return 0, io.EOF
			}
			wait := make(chan struct{})
			w.waiters = append(w.waiters, wait)
			w.mu.Unlock()
			<-wait
			continue
		}
		front := w.queue[0]
		w.mu.Unlock()

		n, err := front.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF {
			w.mu.Lock()
			if len(w.queue) > 0 && w.queue[0] == front {
				w.queue = w.queue[1:]
			}
			w.mu.Unlock()
			continue
		}
		if err != nil {
			return 0, cyfserr.Wrap(cyfserr.IoError, err, "stream writer: read chunk stream")
		}
	}
}

// FirstWakeupReader wraps an io.Reader and signals WaitFirstByte once the
// first byte or a terminal error is available, letting a caller's waiter
// return early with the stream itself rather than blocking for the whole
// transfer (spec.md §4.9.4 "a FirstWakeupStreamWriter that signals on
// first byte").
type FirstWakeupReader struct {
	inner    *bufio.Reader
	once     sync.Once
	peek     sync.Once
	woke     chan struct{}
	firstErr error
}

// NewFirstWakeupReader wraps inner.
func NewFirstWakeupReader(inner io.Reader) *FirstWakeupReader {
	return &FirstWakeupReader{inner: bufio.NewReader(inner), woke: make(chan struct{})}
}

// Read implements io.Reader, signaling on the first byte or error.
func (f *FirstWakeupReader) Read(p []byte) (int, error) {
	n, err := f.inner.Read(p)
	if n > 0 || err != nil {
		f.once.Do(func() {
			f.firstErr = err
			close(f.woke)
		})
	}
	return n, err
}

// WaitFirstByte blocks until the first byte or a terminal error is
// available, or ctx ends. It peeks at the stream without consuming it, so
// later Reads still return the peeked bytes.
func (f *FirstWakeupReader) WaitFirstByte(ctx context.Context) error {
	f.peek.Do(func() {
		go func() {
			_, err := f.inner.Peek(1)
			f.once.Do(func() {
				f.firstErr = err
				close(f.woke)
			})
		}()
	})
	select {
	case <-f.woke:
		if f.firstErr != nil && f.firstErr != io.EOF {
			return f.firstErr
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
