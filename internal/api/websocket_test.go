package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-rachio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rachio/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func testClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
	hub.Register(client)
	return client
}

func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return wsMsg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
		return WSMessage{}
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub, ChannelZoneChanged)

	hub.Broadcast(ChannelZoneChanged, map[string]any{"zone_id": "z1"})

	if msg := receive(t, client); msg.EventType != ChannelZoneChanged || msg.Type != WSTypeEvent {
		t.Errorf("message = %+v", msg)
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub, ChannelDeviceChanged)

	hub.Broadcast(ChannelZoneChanged, map[string]any{"zone_id": "z1"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := testClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestHub_Listener(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub, ChannelDeviceChanged, ChannelZoneChanged, ChannelConnectivityChanged)

	l := hub.Listener("acct1")
	l.OnZoneChanged(model.Zone{ID: "z1", Running: true})
	l.OnDeviceChanged(model.Device{ID: "d1"})
	l.OnConnectivityChanged(false)

	tests := []struct {
		channel string
		key     string
	}{
		{ChannelZoneChanged, "zone"},
		{ChannelDeviceChanged, "device"},
		{ChannelConnectivityChanged, "connected"},
	}
	for _, tt := range tests {
		msg := receive(t, client)
		if msg.EventType != tt.channel {
			t.Fatalf("event_type = %s, want %s", msg.EventType, tt.channel)
		}
		payload, ok := msg.Payload.(map[string]any)
		if !ok {
			t.Fatalf("payload = %T", msg.Payload)
		}
		if payload["account"] != "acct1" {
			t.Errorf("%s account = %v", tt.channel, payload["account"])
		}
		if _, ok := payload[tt.key]; !ok {
			t.Errorf("%s payload missing %q: %v", tt.channel, tt.key, payload)
		}
	}
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	srv, _, _ := testServer(t, withSecret)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("dial without token succeeded, want 401")
	}

	token := signToken(t, testSecret, "alice", time.Now().Add(time.Hour))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{ChannelZoneChanged}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	srv.Hub().Listener("acct1").OnZoneChanged(model.Zone{ID: "z1", Running: true})

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.EventType != ChannelZoneChanged {
		t.Errorf("event = %+v", event)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	srv, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "p" {
		t.Errorf("response = %+v", resp)
	}
}
