package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/gaspardpetit/editorbridge/internal/protocol"
	"github.com/gaspardpetit/editorbridge/internal/transport"
)

type collector struct {
	ids []string
}

func (c *collector) Handle(_ context.Context, msg protocol.Message) {
	c.ids = append(c.ids, msg.ID)
}

func TestProcessPendingPreservesOrder(t *testing.T) {
	var c collector
	d := New(&c)
	for i := 0; i < 5; i++ {
		d.OnBytesReceived([]byte(fmt.Sprintf(`{"type":"ping","id":"m%d"}`, i)))
	}
	if d.Len() != 5 {
		t.Fatalf("len %d", d.Len())
	}
	if n := d.ProcessPending(context.Background()); n != 5 {
		t.Fatalf("processed %d", n)
	}
	for i, id := range c.ids {
		if id != fmt.Sprintf("m%d", i) {
			t.Fatalf("order %v", c.ids)
		}
	}
	if d.ProcessPending(context.Background()) != 0 {
		t.Fatal("queue should be empty")
	}
}

func TestMalformedFrameDropped(t *testing.T) {
	var c collector
	d := New(&c)
	var dropped int
	d.OnDecodeError = func(error) { dropped++ }
	d.OnBytesReceived([]byte(`{"type":"ping","id":"a"}`))
	d.OnBytesReceived([]byte(`{broken`))
	d.OnBytesReceived([]byte(`{"type":"ping","id":"b"}`))
	d.ProcessPending(context.Background())
	if dropped != 1 || len(c.ids) != 2 || c.ids[0] != "a" || c.ids[1] != "b" {
		t.Fatalf("dropped %d ids %v", dropped, c.ids)
	}
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	const producers, each = 8, 200
	seen := map[string]bool{}
	perProducer := map[int]int{}
	d := New(HandlerFunc(func(_ context.Context, msg protocol.Message) {
		seen[msg.ID] = true
		var p, n int
		_, _ = fmt.Sscanf(msg.ID, "p%d-%d", &p, &n)
		if n < perProducer[p] {
			t.Errorf("producer %d out of order: %d after %d", p, n, perProducer[p])
		}
		perProducer[p] = n
	}))

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for n := 0; n < each; n++ {
				d.OnBytesReceived([]byte(fmt.Sprintf(`{"type":"ping","id":"p%d-%d"}`, p, n)))
			}
		}(p)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	ctx := context.Background()
	for {
		select {
		case <-done:
			d.ProcessPending(ctx)
			if len(seen) != producers*each {
				t.Fatalf("saw %d messages", len(seen))
			}
			return
		default:
			d.ProcessPending(ctx)
		}
	}
}

func TestCancelledDrainRequeues(t *testing.T) {
	var c collector
	d := New(&c)
	d.OnBytesReceived([]byte(`{"type":"ping","id":"a"}`))
	d.OnBytesReceived([]byte(`{"type":"ping","id":"b"}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n := d.ProcessPending(ctx); n != 0 {
		t.Fatalf("processed %d with cancelled context", n)
	}
	if d.Len() != 2 {
		t.Fatalf("len %d", d.Len())
	}
	d.ProcessPending(context.Background())
	if len(c.ids) != 2 || c.ids[0] != "a" {
		t.Fatalf("ids %v", c.ids)
	}
}

func TestFramingInvariance(t *testing.T) {
	frames := []string{
		`{"type":"tool_call","id":"r1","tool":"set_transform","parameters":{"position":{"x":1,"y":2,"z":3}}}`,
		`{"type":"ping","id":"t1"}`,
		`{"type":"unity_operation","id":"r2","command":"undo"}`,
	}
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 100; round++ {
		var whole, split collector
		dw, ds := New(&whole), New(&split)
		asm := transport.NewAssembler(0)
		for _, f := range frames {
			dw.OnBytesReceived([]byte(f))
			rest := []byte(f)
			for len(rest) > 0 {
				n := rng.Intn(len(rest)) + 1
				if _, err := asm.Write(rest[:n], false); err != nil {
					t.Fatal(err)
				}
				rest = rest[n:]
			}
			full, err := asm.Write(nil, true)
			if err != nil {
				t.Fatal(err)
			}
			ds.OnBytesReceived(full)
		}
		dw.ProcessPending(context.Background())
		ds.ProcessPending(context.Background())
		if fmt.Sprint(whole.ids) != fmt.Sprint(split.ids) {
			t.Fatalf("round %d: %v vs %v", round, whole.ids, split.ids)
		}
	}
}
