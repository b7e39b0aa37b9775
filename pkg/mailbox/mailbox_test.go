package mailbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/servicelog/pkg/types"
)

func entry(text string) types.Message {
	return types.EntryMessage(types.LogEntry{Level: types.LevelInfo, Text: text})
}

func TestMailboxFIFO(t *testing.T) {
	m := New(8)
	for i := 0; i < 5; i++ {
		if err := m.TrySend(entry(fmt.Sprintf("line %d\n", i))); err != nil {
			t.Fatalf("TrySend %d failed: %v", i, err)
		}
	}
	if m.Len() != 5 || m.Cap() != 8 {
		t.Fatalf("Len/Cap = %d/%d, want 5/8", m.Len(), m.Cap())
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		msg, err := m.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("line %d\n", i); msg.Entry.Text != want {
			t.Errorf("Recv %d = %q, want %q", i, msg.Entry.Text, want)
		}
	}
}

func TestMailboxDropsWhenFull(t *testing.T) {
	m := New(3)
	accepted, dropped := 0, 0

	start := time.Now()
	for i := 0; i < 10; i++ {
		switch err := m.TrySend(entry("x\n")); {
		case err == nil:
			accepted++
		case errors.Is(err, ErrFull):
			dropped++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("TrySend blocked for %v", elapsed)
	}

	if accepted != 3 || dropped != 7 {
		t.Errorf("accepted=%d dropped=%d, want 3/7", accepted, dropped)
	}
	if m.Len() != 3 {
		t.Errorf("Len = %d, want 3", m.Len())
	}
}

func TestMailboxMinimumCapacity(t *testing.T) {
	if got := New(0).Cap(); got != 1 {
		t.Errorf("New(0).Cap() = %d, want 1", got)
	}
}

func TestMailboxRecvHonoursContext(t *testing.T) {
	m := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Recv(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Recv error = %v, want deadline exceeded", err)
	}
}

func TestMailboxCloseDrainsThenFails(t *testing.T) {
	m := New(4)
	_ = m.TrySend(entry("a\n"))
	_ = m.TrySend(types.FlushMessage())
	m.Close()
	m.Close()

	if !m.Closed() {
		t.Fatal("Closed() should report true")
	}
	if err := m.TrySend(entry("late\n")); !errors.Is(err, ErrClosed) {
		t.Errorf("TrySend after Close = %v, want ErrClosed", err)
	}
	if err := m.Send(context.Background(), types.FlushMessage()); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}

	ctx := context.Background()
	first, err := m.Recv(ctx)
	if err != nil || first.Entry.Text != "a\n" {
		t.Fatalf("first Recv = %+v, %v", first, err)
	}
	second, err := m.Recv(ctx)
	if err != nil || second.Kind != types.KindFlush {
		t.Fatalf("second Recv = %+v, %v", second, err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.Recv(ctx); !errors.Is(err, ErrClosed) {
			t.Errorf("Recv on drained closed mailbox = %v, want ErrClosed", err)
		}
	}
}

func TestMailboxSendWaitsForCapacity(t *testing.T) {
	m := New(1)
	_ = m.TrySend(entry("fill\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Send(ctx, types.FlushMessage()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send on full mailbox = %v, want deadline exceeded", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.Send(context.Background(), types.FlushMessage()) }()

	if _, err := m.Recv(context.Background()); err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not complete after capacity was freed")
	}
}

func TestMailboxConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 500

	m := New(producers * perProducer)
	var sent atomic.Int64
	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := m.TrySend(entry(fmt.Sprintf("%d:%d", p, i))); err == nil {
					sent.Add(1)
				}
			}
		}(p)
	}
	wg.Wait()
	m.Close()

	// Each producer's own messages must come out in the order it sent them.
	last := make(map[string]int)
	received := 0
	for {
		msg, err := m.Recv(context.Background())
		if err != nil {
			break
		}
		received++
		var p, i int
		fmt.Sscanf(msg.Entry.Text, "%d:%d", &p, &i)
		key := fmt.Sprint(p)
		if prev, ok := last[key]; ok && i <= prev {
			t.Fatalf("producer %d out of order: %d after %d", p, i, prev)
		}
		last[key] = i
	}

	if int64(received) != sent.Load() {
		t.Errorf("received %d messages, sent %d", received, sent.Load())
	}
}

func TestMailboxCloseRacingProducersLosesNothing(t *testing.T) {
	for round := 0; round < 50; round++ {
		m := New(64)
		var accepted atomic.Int64
		var wg sync.WaitGroup
		start := make(chan struct{})

		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 200; i++ {
					if m.TrySend(entry("x")) == nil {
						accepted.Add(1)
					}
				}
			}()
		}

		received := 0
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for {
				if _, err := m.Recv(context.Background()); err != nil {
					return
				}
				received++
			}
		}()

		close(start)
		time.Sleep(time.Duration(round%5) * 100 * time.Microsecond)
		m.Close()
		<-drained
		wg.Wait()

		// Nothing accepted after the final drain may be left behind.
		if _, err := m.Recv(context.Background()); !errors.Is(err, ErrClosed) {
			t.Fatalf("round %d: message queued after the final drain", round)
		}
		if int64(received) != accepted.Load() {
			t.Fatalf("round %d: received %d, accepted %d", round, received, accepted.Load())
		}
	}
}
