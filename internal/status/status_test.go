package status

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/pixeltennis/pixeltennis/internal/syncengine"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(Config{
		Addr: "127.0.0.1:0",
		Snapshot: func() syncengine.Status {
			return syncengine.Status{Indicator: syncengine.IndicatorPending, Online: true, SignedIn: true, Pending: 3}
		},
		LevelTitle: func(level int) string {
			if level >= 3 {
				return "도전자"
			}
			return "루키"
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid message %s: %v", data, err)
	}
	return msg
}

func decode(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d, want 200", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(body)
}

func TestWelcomeIsCurrentStatus(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeStatus {
		t.Errorf("welcome type = %s, want %s", msg.Type, MessageTypeStatus)
	}

	var st syncengine.Status
	decode(t, msg.Data, &st)
	if st.Indicator != syncengine.IndicatorPending || st.Pending != 3 {
		t.Errorf("welcome status = %+v, want pending with 3 ops", st)
	}
	if n := s.ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}
}

func TestPublishBroadcastsToAllClients(t *testing.T) {
	s := startServer(t)
	conns := []*websocket.Conn{dial(t, s), dial(t, s)}
	for _, c := range conns {
		readMessage(t, c)
	}

	s.Publish(syncengine.Event{Type: syncengine.EventLevelUp, Level: 3})
	s.Publish(syncengine.Event{Type: syncengine.EventFlushComplete, Flush: &syncengine.FlushResult{Attempted: 2, Succeeded: 2}})

	for i, c := range conns {
		msg := readMessage(t, c)
		if msg.Type != MessageTypeLevelUp {
			t.Fatalf("client %d: first message = %s, want %s", i, msg.Type, MessageTypeLevelUp)
		}
		var lu LevelUpData
		decode(t, msg.Data, &lu)
		if lu != (LevelUpData{Level: 3, Title: "도전자"}) {
			t.Errorf("client %d: level up = %+v", i, lu)
		}

		msg = readMessage(t, c)
		if msg.Type != MessageTypeFlushComplete {
			t.Fatalf("client %d: second message = %s, want %s", i, msg.Type, MessageTypeFlushComplete)
		}
		var fr syncengine.FlushResult
		decode(t, msg.Data, &fr)
		if fr.Succeeded != 2 {
			t.Errorf("client %d: succeeded = %d, want 2", i, fr.Succeeded)
		}
	}
}

func TestForwardStopsWhenChannelCloses(t *testing.T) {
	s := startServer(t)
	ch := make(chan syncengine.Event, 1)
	done := make(chan struct{})
	go func() {
		s.Forward(context.Background(), ch)
		close(done)
	}()

	ch <- syncengine.Event{Type: syncengine.EventLevelUp, Level: 2}
	close(ch)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Forward did not return")
	}
}

func TestHTTPEndpoints(t *testing.T) {
	s := startServer(t)
	base := "http://" + s.Addr()

	if body := get(t, base+"/health"); !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("/health = %s", body)
	}

	var st syncengine.Status
	decode(t, []byte(get(t, base+"/status")), &st)
	if !st.Online {
		t.Error("/status should report online")
	}

	s.Publish(syncengine.Event{Type: syncengine.EventFlushComplete, Flush: &syncengine.FlushResult{Attempted: 3, Succeeded: 1, Failed: 2, Remaining: 2}})
	s.Publish(syncengine.Event{Type: syncengine.EventStatus, Status: &syncengine.Status{Online: false, Pending: 2}})

	metrics := get(t, base+"/metrics")
	for _, want := range []string{
		"pixeltennis_sync_flushes_total 1",
		`pixeltennis_sync_flush_ops_total{result="failed"} 2`,
		"pixeltennis_sync_queue_depth 2",
		"pixeltennis_sync_online 0",
		"pixeltennis_status_clients",
	} {
		if !strings.Contains(metrics, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}
