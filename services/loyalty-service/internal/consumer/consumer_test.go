package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/detailcrm/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type sliceReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
	closed bool
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumerRetriesThenMovesOn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &sliceReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Topic: "booking.appointment.completed.v1", Key: []byte("a1"), Headers: []kafka.Header{{Key: kafkax.HeaderEventID, Value: []byte("e1")}}},
			{Topic: "booking.appointment.completed.v1", Key: []byte("a2"), Partition: 3, Offset: 17},
			{Topic: "booking.appointment.completed.v1", Key: []byte("a2"), Partition: 3, Offset: 18},
		},
	}

	calls := map[string]int{}
	handler := func(_ context.Context, meta kafkax.EventMeta, _ kafka.Message) error {
		calls[meta.EventID]++
		if meta.EventID == "e1" && calls["e1"] < 2 {
			return errors.New("transient")
		}
		return nil
	}

	c := NewWithReader(slog.New(slog.NewTextHandler(io.Discard, nil)), reader, handler)
	c.backoff = 0
	c.Run(ctx)

	if calls["e1"] != 2 {
		t.Fatalf("e1 handled %d times, want 2", calls["e1"])
	}
	if calls["booking.appointment.completed.v1:3:17"] != 1 || calls["booking.appointment.completed.v1:3:18"] != 1 {
		t.Fatalf("fallback event ids must come from partition and offset: %v", calls)
	}
	if !reader.closed {
		t.Fatal("reader not closed")
	}
}
