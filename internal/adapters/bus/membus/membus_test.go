package membus

import (
	"context"
	"testing"
	"time"
)

func TestFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New()

	first, err := b.Subscribe(ctx, "ch-a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := b.Subscribe(ctx, "ch-a", "ch-b")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, "ch-a", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-first:
		if msg.Channel != "ch-a" || string(msg.Payload) != "hello" {
			t.Fatalf("first subscriber got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("first subscriber got nothing")
	}
	select {
	case msg := <-second:
		if msg.Channel != "ch-a" || string(msg.Payload) != "hello" {
			t.Fatalf("second subscriber got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("second subscriber got nothing")
	}
}

func TestNoDeliveryWithoutSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New()

	sub, err := b.Subscribe(ctx, "ch-a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Publish(ctx, "ch-other", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-sub:
		t.Fatalf("unexpected delivery: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelClosesSubscription(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := b.Subscribe(ctx, "ch-a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-sub:
		if ok {
			t.Fatal("got a message instead of close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel never closed")
	}

	// Publishing after the subscriber is gone must not block or error.
	if err := b.Publish(context.Background(), "ch-a", []byte("late")); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}
