package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

const (
	defaultSinkBufSize = 64 * 1024
	writerQueueDepth   = 256
)

// asyncWriter fans buffered writes out to one or more sinks from a
// single background goroutine, so log calls never block on disk or
// stderr contention.
type asyncWriter struct {
	pending  chan []byte
	flushReq chan chan error
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	sinks    []*bufio.Writer
	firstErr error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = defaultSinkBufSize
	}
	aw := &asyncWriter{
		pending:  make(chan []byte, writerQueueDepth),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, w := range writers {
		if w != nil {
			aw.sinks = append(aw.sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case data, open := <-w.pending:
			if !open {
				_ = w.syncSinks()
				return
			}
			if len(data) > 0 {
				w.recordErr(w.fanOut(data))
			}
		case ack := <-w.flushReq:
			ack <- w.syncSinks()
		}
	}
}

// Write enqueues the payload. When the queue is saturated it blocks
// rather than dropping the line.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.pending <- append([]byte(nil), p...)
	return nil
}

// Flush blocks until everything enqueued so far has reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.flushReq <- ack
	return <-ack
}

// Close drains the queue and reports the first write error seen.
func (w *asyncWriter) Close() error {
	w.stopOnce.Do(func() {
		close(w.pending)
	})
	<-w.done
	return w.err()
}

// fanOut writes p to every sink, flushing each so lines are never split
// across process exits.
func (w *asyncWriter) fanOut(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			return err
		}
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) syncSinks() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, sink := range w.sinks {
		errs = append(errs, sink.Flush())
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}

func (w *asyncWriter) recordErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.firstErr == nil {
		w.firstErr = err
	}
}
