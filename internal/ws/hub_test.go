package ws

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/driftwatch/driftwatch/internal/testutil"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestClient(userID string) *Client {
	// conn stays nil; hub tests never touch the wire.
	return newClient(nil, userID, testLogger())
}

func TestNewClient(t *testing.T) {
	c := newTestClient("u-alpha")
	if cap(c.send) != sendBuffer {
		t.Errorf("send capacity = %d, want %d", cap(c.send), sendBuffer)
	}
}

func TestRegister(t *testing.T) {
	hub := NewHub(testLogger())
	if hub.ClientCount() != 0 {
		t.Fatalf("fresh hub ClientCount = %d, want 0", hub.ClientCount())
	}

	clients := []*Client{
		newTestClient("u-alpha"),
		newTestClient("u-beta"),
		newTestClient("u-gamma"),
	}
	for i, c := range clients {
		hub.Register(c)
		if got := hub.ClientCount(); got != i+1 {
			t.Errorf("after %d registrations, ClientCount = %d", i+1, got)
		}
	}

	hub.mu.RLock()
	_, member := hub.clients[clients[0]]
	hub.mu.RUnlock()
	if !member {
		t.Error("registered client missing from hub.clients")
	}
}

func TestUnregister(t *testing.T) {
	t.Run("removes client and closes channel", func(t *testing.T) {
		hub := NewHub(testLogger())
		c := newTestClient("u-alpha")
		hub.Register(c)

		hub.Unregister(c)

		if hub.ClientCount() != 0 {
			t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
		}
		if _, open := <-c.send; open {
			t.Error("send channel still open after unregister")
		}
	})

	t.Run("never registered", func(t *testing.T) {
		hub := NewHub(testLogger())
		c := newTestClient("u-stranger")

		hub.Unregister(c)

		select {
		case _, open := <-c.send:
			if !open {
				t.Error("channel closed for a client the hub never saw")
			}
		default:
		}
	})

	t.Run("twice is a no-op", func(t *testing.T) {
		hub := NewHub(testLogger())
		c := newTestClient("u-alpha")
		hub.Register(c)
		hub.Unregister(c)

		// A second call must not double-close the channel.
		hub.Unregister(c)

		if hub.ClientCount() != 0 {
			t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
		}
	})
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(testLogger())
	clients := []*Client{
		newTestClient("u-alpha"),
		newTestClient("u-beta"),
		newTestClient("u-gamma"),
	}
	for _, c := range clients {
		hub.Register(c)
	}

	hub.Broadcast(Message{
		Type:      MessageReading,
		StreamID:  "lat-eu",
		Timestamp: time.Now(),
		Data:      ReadingData{Index: 7, Value: 12.5, Baseline: 10.1, Spread: 1.2, ZScore: 2.0},
	})

	for _, c := range clients {
		msg := recvMessage(t, c)
		if msg.Type != MessageReading || msg.StreamID != "lat-eu" {
			t.Errorf("client %s received %q for %q", c.userID, msg.Type, msg.StreamID)
		}
	}
}

func TestBroadcast_NoClients(t *testing.T) {
	hub := NewHub(testLogger())

	// Nothing to deliver to; must simply return.
	hub.Broadcast(Message{Type: MessageStreamRemoved, StreamID: "lat-eu", Timestamp: time.Now()})
}

func TestBroadcast_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(testLogger())
	c := newTestClient("u-slow")
	hub.Register(c)

	for i := range sendBuffer {
		c.send <- Message{Type: MessageReading, StreamID: fmt.Sprintf("fill-%d", i)}
	}

	hub.Broadcast(Message{Type: MessageAnomaly, StreamID: "overflow"})

	if len(c.send) != sendBuffer {
		t.Fatalf("buffer length = %d, want %d", len(c.send), sendBuffer)
	}
	if first := <-c.send; first.StreamID == "overflow" {
		t.Error("message for a full buffer should have been dropped")
	}
}

func TestHub_ConcurrentUse(t *testing.T) {
	hub := NewHub(testLogger())

	const (
		churningClients = 50
		broadcasts      = 100
	)

	var wg sync.WaitGroup
	for i := range churningClients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestClient(fmt.Sprintf("u-%02d", i))
			hub.Register(c)

			// Drain so broadcasts never hit the drop path.
			go func() {
				for range c.send {
				}
			}()

			time.Sleep(10 * time.Millisecond)
			hub.Unregister(c)
		}()
	}

	for i := range broadcasts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(Message{
				Type:      MessageReading,
				StreamID:  "churn",
				Timestamp: time.Now(),
				Data:      ReadingData{Index: uint64(i), Value: float64(i)},
			})
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount after churn = %d, want 0", got)
	}
}

func TestBroadcastMessageTypes(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("u-alpha")
	hub.Register(client)

	anom := testutil.NewAnomaly("lat-eu", testutil.WithSeverity("critical"), testutil.WithZScore(6.3))
	raised := testutil.NewAlert("lat-eu")
	resolved := testutil.NewAlert("lat-eu", testutil.WithState("resolved"))

	cases := []struct {
		name string
		msg  Message
	}{
		{"reading", Message{
			Type:      MessageReading,
			StreamID:  "lat-eu",
			Timestamp: time.Now(),
			Data:      ReadingData{Index: 42, Value: 11.8, Baseline: 10.2, Spread: 1.5, ZScore: 1.07},
		}},
		{"anomaly", Message{
			Type:      MessageAnomaly,
			StreamID:  "lat-eu",
			Timestamp: time.Now(),
			Data:      AnomalyData{Anomaly: &anom},
		}},
		{"alert raised", Message{
			Type:      MessageAlertRaised,
			StreamID:  "lat-eu",
			Timestamp: time.Now(),
			Data:      AlertData{Alert: &raised},
		}},
		{"alert resolved", Message{
			Type:      MessageAlertResolved,
			StreamID:  "lat-eu",
			Timestamp: time.Now(),
			Data:      AlertData{Alert: &resolved},
		}},
		{"stream removed", Message{
			Type:      MessageStreamRemoved,
			StreamID:  "lat-eu",
			Timestamp: time.Now(),
			Data:      StreamRemovedData{Name: "cpu-load", Kind: "synthetic"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hub.Broadcast(tc.msg)

			got := recvMessage(t, client)
			if got.Type != tc.msg.Type {
				t.Errorf("Type = %q, want %q", got.Type, tc.msg.Type)
			}
			if got.StreamID != tc.msg.StreamID {
				t.Errorf("StreamID = %q, want %q", got.StreamID, tc.msg.StreamID)
			}
		})
	}
}
