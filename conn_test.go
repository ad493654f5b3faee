package anonchat

import (
    "encoding/json"
    "strings"
    "sync/atomic"
    "testing"
    "time"
)

// A simple mock connection, used to test the chat server without an actual
// HTTP connection.
//
// Although the rooms and the sessions use the `Conn` API to use this
// connection, tests must access this structure directly to simulate
// interactions.
//
// To simulate an event arriving from the client's remote endpoint, push a
// payload into `fromClient`; to simulate a client receiving an event, pop
// a payload from `fromServer`. The `TestSend`/`TestRecv` helpers wrap both
// with the proper checks, so tests can't hang on a closed connection.
type mockConn struct {
    // fromClient simulates incoming messages (from the server's
    // perspective) from the client's remote endpoint.
    fromClient chan string

    // fromServer simulates outgoing messages (from the server's
    // perspective) to the client's remote endpoint.
    fromServer chan string

    // stop signals, by getting closed, that the connection should get
    // closed.
    stop chan struct{}

    // Whether the connection is currently running.
    running uint32
}

// isClosed check if the connection is closed.
func (mc *mockConn) isClosed() bool {
    return atomic.LoadUint32(&mc.running) == 0
}

// Close the connection.
//
// This can safely be called multiple times without any issue.
func (mc *mockConn) Close() error {
    if atomic.CompareAndSwapUint32(&mc.running, 1, 0) {
        close(mc.stop)
    }
    return nil
}

// Recv blocks until a new message was received.
func (mc *mockConn) Recv() (string, error) {
    var msg string

    select {
    case msg = <-mc.fromClient:
        return msg, nil
    case <-mc.stop:
        return msg, ConnEOF
    }
}

// SendStr send `msg`, previously formatted by the caller.
func (mc *mockConn) SendStr(msg string) error {
    if mc.isClosed() {
        return ConnEOF
    }

    mc.fromServer <- msg

    return nil
}

// TestSend send a payload from the client to the server.
func (mc *mockConn) TestSend(msg string) error {
    if mc.isClosed() {
        return ConnEOF
    }

    mc.fromClient <- msg
    return nil
}

// TestRecv wait for `timeout` to receive a payload from the server.
func (mc *mockConn) TestRecv(timeout time.Duration) (string, error) {
    select {
    case msg := <-mc.fromServer:
        return msg, nil
    case <-time.After(timeout):
        return "", TestTimeout
    case <-mc.stop:
        return "", ConnEOF
    }
}

// NewMockConn create a dummy, mock connection that may be used in tests.
func NewMockConn() Conn {
    return &mockConn {
        fromClient: make(chan string),
        fromServer: make(chan string, 100),
        stop: make(chan struct{}),
        running: 1,
    }
}

// Default deadline when waiting for an asynchronously delivered event.
const testWait = time.Second

// sendEvent push an encoded event into the server, as a remote client
// would.
func sendEvent(t *testing.T, mc *mockConn, name string, data interface{}) {
    t.Helper()

    err := mc.TestSend(encodeEvent(name, data))
    if err != nil {
        t.Fatalf("Couldn't send the event '%s': %+v", name, err)
    }
}

// waitEvent pop payloads from the connection until one decodes into an
// event named `name`, failing the test if nothing arrives in time.
//
// Deliveries are asynchronous, so unrelated events queued in between are
// skipped.
func waitEvent(t *testing.T, mc *mockConn, name string) Event {
    t.Helper()

    deadline := time.Now().Add(testWait)
    for time.Now().Before(deadline) {
        raw, err := mc.TestRecv(time.Until(deadline))
        if err != nil {
            break
        }

        var ev Event
        if json.Unmarshal([]byte(raw), &ev) != nil {
            continue
        }
        if ev.Name == name {
            return ev
        }
    }

    t.Fatalf("Timed out waiting for the event '%s'", name)
    return Event{}
}

// waitChat wait for a chat line containing `part`.
func waitChat(t *testing.T, mc *mockConn, part string) string {
    t.Helper()

    deadline := time.Now().Add(testWait)
    for time.Now().Before(deadline) {
        raw, err := mc.TestRecv(time.Until(deadline))
        if err != nil {
            break
        }

        var ev Event
        if json.Unmarshal([]byte(raw), &ev) != nil {
            continue
        }
        if ev.Name != EventMessage {
            continue
        }

        var text string
        if json.Unmarshal(ev.Data, &text) == nil &&
                strings.Contains(text, part) {
            return text
        }
    }

    t.Fatalf("Timed out waiting for a chat line containing '%s'", part)
    return ""
}

// assertNoChat drain the connection for a short while and fail if any chat
// line containing `part` shows up.
func assertNoChat(t *testing.T, mc *mockConn, part string, wait time.Duration) {
    t.Helper()

    deadline := time.Now().Add(wait)
    for time.Now().Before(deadline) {
        raw, err := mc.TestRecv(time.Until(deadline))
        if err != nil {
            return
        }

        var ev Event
        if json.Unmarshal([]byte(raw), &ev) != nil {
            continue
        }
        if ev.Name != EventMessage {
            continue
        }

        var text string
        if json.Unmarshal(ev.Data, &text) == nil &&
                strings.Contains(text, part) {
            t.Fatalf("Received an unexpected chat line: '%s'", text)
        }
    }
}

// decodeData decode an event's payload into `into`, failing the test on a
// malformed payload.
func decodeData(t *testing.T, ev Event, into interface{}) {
    t.Helper()

    err := json.Unmarshal(ev.Data, into)
    if err != nil {
        t.Fatalf("Couldn't decode the '%s' payload: %+v", ev.Name, err)
    }
}

// connectUser register `nick` for `address` (unless empty), request a
// token and connect a fresh mock connection, draining the greeting
// `room_list` so tests start from a quiet connection.
func connectUser(t *testing.T, sv ChatServer, address, nick string) *mockConn {
    t.Helper()

    if len(nick) > 0 {
        _, err := sv.Register(address, nick)
        if err != nil && err != NickTaken {
            t.Fatalf("Couldn't register '%s': %+v", nick, err)
        }
    }

    tk, err := sv.RequestToken(address)
    if err != nil {
        t.Fatalf("Couldn't generate the request token: %+v", err)
    }

    mc := NewMockConn().(*mockConn)
    err = sv.Connect(tk, mc)
    if err != nil {
        t.Fatalf("Couldn't connect: %+v", err)
    }

    waitEvent(t, mc, EventRoomList)

    return mc
}
