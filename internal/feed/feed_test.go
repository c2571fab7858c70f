package feed

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

// TestHub_BroadcastReachesSubscriber verifies one published frame
// arrives at a connected subscriber.
func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	hub := newTestHub(t, nil)

	received := make(chan []byte, 1)

	sub := newTestSubscriber(t, hub.Addr(), func(data []byte) {
		received <- data
	})
	_ = sub

	// Give the hub a moment to register the subscriber
	waitForSubscribers(t, hub, 1)

	frame := []byte("claim event frame")
	hub.Broadcast(frame)

	select {
	case got := <-received:
		if !bytes.Equal(got, frame) {
			t.Errorf("frame mismatch: got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not receive the frame")
	}
}

// TestHub_DuplicateFramesFiltered verifies the subscriber-side dedup
// delivers a repeated frame once.
func TestHub_DuplicateFramesFiltered(t *testing.T) {
	hub := newTestHub(t, nil)

	received := make(chan []byte, 4)

	newTestSubscriber(t, hub.Addr(), func(data []byte) {
		received <- data
	})

	waitForSubscribers(t, hub, 1)

	frame := []byte("repeated frame")
	hub.Broadcast(frame)
	hub.Broadcast(frame)

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not receive the frame")
	}

	select {
	case <-received:
		t.Error("duplicate frame should have been filtered")
	case <-time.After(500 * time.Millisecond):
	}
}

// TestSubscriber_RequestSnapshot verifies the bidirectional snapshot
// path.
func TestSubscriber_RequestSnapshot(t *testing.T) {
	snapshot := []byte("compressed snapshot bytes")

	hub := newTestHub(t, func() ([]byte, error) {
		return snapshot, nil
	})

	sub := newTestSubscriber(t, hub.Addr(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := sub.RequestSnapshot(ctx)
	if err != nil {
		t.Fatalf("request snapshot: %v", err)
	}

	if !bytes.Equal(got, snapshot) {
		t.Errorf("snapshot mismatch: got %q", got)
	}
}

// TestDedup_Check verifies first-seen semantics.
func TestDedup_Check(t *testing.T) {
	d := NewDedup()
	defer d.Close()

	if !d.Check([]byte("a")) {
		t.Error("first sighting should pass")
	}

	if d.Check([]byte("a")) {
		t.Error("second sighting should be filtered")
	}

	if !d.Check([]byte("b")) {
		t.Error("distinct frame should pass")
	}
}

// --- test helpers ---

// newTestHub starts a hub on a loopback port.
func newTestHub(t *testing.T, snapshots SnapshotProvider) *Hub {
	t.Helper()

	hub, err := NewHub(generateKey(t), "127.0.0.1:0", snapshots)
	if err != nil {
		t.Fatalf("create hub: %v", err)
	}

	if err := hub.Start(); err != nil {
		t.Fatalf("start hub: %v", err)
	}

	t.Cleanup(func() {
		if err := hub.Close(); err != nil {
			t.Errorf("close hub: %v", err)
		}
	})

	return hub
}

// newTestSubscriber connects a subscriber to the hub.
func newTestSubscriber(t *testing.T, addr string, onEvent func([]byte)) *Subscriber {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, addr, generateKey(t), onEvent)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	t.Cleanup(func() {
		sub.Close()
	})

	return sub
}

// waitForSubscribers blocks until the hub sees n subscribers.
func waitForSubscribers(t *testing.T, hub *Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for hub.SubscriberCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("hub never saw %d subscribers", n)
		}

		time.Sleep(10 * time.Millisecond)
	}
}

// generateKey creates a fresh ed25519 private key.
func generateKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return key
}
