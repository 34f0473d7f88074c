package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/tracon-sim/internal/command"
	"github.com/yegors/tracon-sim/internal/conflict"
	"github.com/yegors/tracon-sim/internal/scoring"
	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/pkg/logger"
)

type fakeCommander struct{}

func (fakeCommander) ApplyCommand(_ context.Context, id string, cmd command.Command) (command.Result, error) {
	if id == "AC0001" {
		return command.Result{Status: command.Accepted}, nil
	}
	return command.Result{Status: command.Dropped}, nil
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T, cfg Config) (*Server, *websocket.Conn) {
	t.Helper()
	s := NewServer(cfg, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	ts := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
		ts.Close()
	})

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s, conn
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestConsumeBroadcastsFrame(t *testing.T) {
	s, conn := startHub(t, Config{SnapshotEvery: 5})

	// Tick 3 is not a snapshot tick, so only the events go out.
	s.Consume(simulation.Frame{
		Snapshot: &simulation.Snapshot{Tick: 3},
		Raised:   []conflict.Alert{{ID: 7, Kind: conflict.KindWake, Severity: conflict.Caution, Message: "wake"}},
		Commands: []simulation.CommandRecord{{AircraftID: "AC0001",
			Command: command.Command{Kind: command.Speed, SpeedKts: 210},
			Result:  command.Result{Status: command.Accepted}}},
	})
	s.Consume(simulation.Frame{Snapshot: &simulation.Snapshot{Tick: 5}})
	s.Consume(simulation.Frame{Snapshot: &simulation.Snapshot{Tick: 6, Ended: true}, Final: &scoring.Metrics{Grade: "A", Final: true}})

	wantTypes := []string{
		MessageTypeAlert, MessageTypeCommandResult, MessageTypeSnapshot,
		MessageTypeSnapshot, MessageTypeSessionEnded,
	}
	var got []received
	for range wantTypes {
		got = append(got, read(t, conn))
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Errorf("message %d = %s, want %s", i, got[i].Type, want)
		}
	}

	var alert conflict.Alert
	if err := json.Unmarshal(got[0].Data, &alert); err != nil || alert.ID != 7 || alert.Severity != conflict.Caution {
		t.Errorf("alert = %+v, %v", alert, err)
	}
	var resp CommandResponse
	if err := json.Unmarshal(got[1].Data, &resp); err != nil || resp.Command != "maintain 210 knots" || resp.Result.Status != command.Accepted {
		t.Errorf("command result = %+v, %v", resp, err)
	}
	var snap simulation.Snapshot
	if err := json.Unmarshal(got[3].Data, &snap); err != nil || snap.Tick != 6 || !snap.Ended {
		t.Errorf("final snapshot = %+v, %v", snap, err)
	}
}

func TestClientCommands(t *testing.T) {
	tests := []struct {
		name      string
		commander Commander
		body      string
		wantType  string
		want      command.Status
	}{
		{"accepted", fakeCommander{}, `{"type":"command","data":{"request_id":"r1","aircraft_id":"AC0001","command":{"kind":"heading","heading":90}}}`, MessageTypeCommandResult, command.Accepted},
		{"stale", fakeCommander{}, `{"type":"command","data":{"request_id":"r2","aircraft_id":"AC0099","command":{"kind":"heading","heading":90}}}`, MessageTypeCommandResult, command.Dropped},
		{"no commander", nil, `{"type":"command","data":{"request_id":"r3","aircraft_id":"AC0001","command":{"kind":"heading","heading":90}}}`, MessageTypeCommandResult, command.Rejected},
		{"unknown type", fakeCommander{}, `{"type":"subscribe","data":{}}`, MessageTypeError, ""},
		{"bad payload", fakeCommander{}, `{"type":"command","data":"heading 090"}`, MessageTypeError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, conn := startHub(t, Config{})
			if tt.commander != nil {
				s.SetCommander(tt.commander)
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.body)); err != nil {
				t.Fatal(err)
			}
			msg := read(t, conn)
			if msg.Type != tt.wantType {
				t.Fatalf("reply = %s %s", msg.Type, msg.Data)
			}
			if tt.want == "" {
				return
			}
			var resp CommandResponse
			if err := json.Unmarshal(msg.Data, &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Result.Status != tt.want || resp.RequestID == "" || resp.Command != "fly heading 090" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestBroadcastDoesNotBlockWithoutHub(t *testing.T) {
	s := NewServer(Config{}, logger.NewNop())
	for i := 0; i < sendBuffer+10; i++ {
		s.Broadcast(&Message{Type: MessageTypeSnapshot})
	}
	if s.Broadcast(&Message{Type: MessageTypeSnapshot}) {
		t.Error("broadcast queued past the buffer")
	}
}
