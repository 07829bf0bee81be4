package polygon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// wsServer runs handler for each accepted connection.
func wsServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readAction(t *testing.T, conn *websocket.Conn) map[string]string {
	t.Helper()
	var msg map[string]string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := conn.ReadMessage(); err == nil {
		json.Unmarshal(data, &msg)
	}
	return msg
}

func TestStreamClient_AuthAndSubscribe(t *testing.T) {
	subscribed := make(chan string, 1)

	srv := wsServer(t, func(conn *websocket.Conn) {
		auth := readAction(t, conn)
		if auth["action"] != "auth" || auth["params"] != "test-key" {
			t.Errorf("auth frame = %v", auth)
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"status","status":"auth_success","message":"authenticated"}]`))

		sub := readAction(t, conn)
		subscribed <- sub["params"]

		conn.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"T","sym":"O:AAPL240119C00150000","x":312,"p":5.0,"s":20,"c":[209],"t":1704209400123,"q":7}]`))

		// Hold the socket open until the client goes away.
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		conn.ReadMessage()
	})

	client := NewStreamClient(StreamConfig{
		URL:          wsURL(srv),
		APIKey:       "test-key",
		Subscription: "T.*",
	}, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	select {
	case params := <-subscribed:
		if params != "T.*" {
			t.Errorf("subscription params = %q, want T.*", params)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe frame never arrived")
	}

	select {
	case trade := <-client.Trades():
		if trade.Symbol != "O:AAPL240119C00150000" || trade.Price != 5.0 || trade.Size != 20 {
			t.Errorf("trade = %+v", trade)
		}
		if trade.SequenceNumber != 7 {
			t.Errorf("SequenceNumber = %d, want 7", trade.SequenceNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trade event never arrived")
	}

	if st := client.State(); st != StateSubscribed {
		t.Errorf("State() = %v, want subscribed", st)
	}
	if !client.Open() {
		t.Error("Open() = false, want true")
	}
}

func TestStreamClient_MaxConnectionsIsFatal(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		readAction(t, conn) // auth
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"status","status":"max_connections","message":"Maximum number of connections exceeded"}]`))
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	client := NewStreamClient(StreamConfig{URL: wsURL(srv), APIKey: "key"}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err != ErrMaxConnections {
			t.Errorf("error = %v, want ErrMaxConnections", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("max_connections error never surfaced")
	}
}

func TestStreamClient_CloseUnblocksConsumers(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		readAction(t, conn) // auth, then go silent
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		conn.ReadMessage()
	})

	client := NewStreamClient(StreamConfig{URL: wsURL(srv), APIKey: "key"}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A consumer draining a silent connection blocks on channels that will
	// never fire; Done is what lets it observe the teardown.
	released := make(chan struct{})
	go func() {
		select {
		case <-client.Trades():
		case <-client.Errors():
		case <-client.Done():
		}
		close(released)
	}()

	time.Sleep(20 * time.Millisecond)
	client.Close()

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer still blocked after Close")
	}
}

func TestStreamClient_ReadFailureSurfacesError(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		readAction(t, conn) // auth, then drop the connection abruptly
	})

	client := NewStreamClient(StreamConfig{URL: wsURL(srv), APIKey: "key"}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Error("nil error from Errors()")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read failure never surfaced")
	}

	// Read loop exit marks the client disconnected.
	deadline := time.Now().Add(time.Second)
	for client.State() != StateDisconnected && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if client.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", client.State())
	}
}
