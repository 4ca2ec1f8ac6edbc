package sender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDispatcherPreservesPerChatOrder(t *testing.T) {
	d := NewDispatcher(Options{LaneBuffer: 128})
	defer d.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	const n = 50
	for i := 0; i < n; i++ {
		i := i
		err := d.Enqueue(context.Background(), 7, "send.text", "sendMessage", func() error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != n {
		t.Fatalf("executed %d jobs, expected %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran at position %d; per-chat order violated", v, i)
		}
	}
}

func TestDispatcherParallelChats(t *testing.T) {
	d := NewDispatcher(Options{LaneBuffer: 4})
	defer d.Close()

	release := make(chan struct{})
	started := make(chan int64, 2)
	for _, chat := range []int64{1, 2} {
		chat := chat
		if err := d.Enqueue(context.Background(), chat, "send.text", "", func() error {
			started <- chat
			<-release
			return nil
		}); err != nil {
			t.Fatalf("enqueue chat %d: %v", chat, err)
		}
	}

	seen := map[int64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("chats did not run in parallel")
		}
	}
	close(release)
	if !seen[1] || !seen[2] {
		t.Fatalf("expected both chats started, got %v", seen)
	}
}

func TestDispatcherEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	err := d.Enqueue(context.Background(), 1, "send.text", "", func() error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, expected ErrQueueClosed", err)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(Options{LaneBuffer: 1})
	defer d.Close()

	block := make(chan struct{})
	defer close(block)

	// First job occupies the worker, second fills the buffer.
	if err := d.Enqueue(context.Background(), 3, "a", "", func() error { <-block; return nil }); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	// Give the worker a moment to pick up the first job.
	deadline := time.Now().Add(time.Second)
	for {
		if err := d.Enqueue(context.Background(), 3, "b", "", func() error { return nil }); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("buffer slot never freed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := d.Enqueue(context.Background(), 3, "c", "", func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, expected ErrQueueFull", err)
	}
}
