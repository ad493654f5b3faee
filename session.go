package anonchat

import (
    "encoding/json"
    "sync"
    "sync/atomic"

    "github.com/sirupsen/logrus"
)

// session represent a connected user: a resolved username bound to an
// address, an optional current room and, possibly, an admin capability.
//
// The session owns its `Conn` and runs a goroutine that decodes inbound
// events and dispatches them to the server. Sessions are created on
// `Connect()` and destroyed when the connection drops; nothing about them
// is durable.
type session struct {
    // id is an opaque identifier for this connection.
    id string

    // The user's name, resolved before the connection was accepted.
    username string

    // The user's network address, the key of its identity.
    address string

    // The connection to the user's remote endpoint.
    conn Conn

    // The server this session is connected to.
    srv *server

    // capability granting admin privileges, empty unless issued by a
    // successful admin login (or by resolving to the reserved nickname).
    capability string

    // current room, nil while the user hasn't joined any.
    current *room

    // lock fields that could be accessed concurrently.
    mutex sync.Mutex

    // Whether the session is currently running.
    running uint32
}

// ID return the session's opaque connection identifier.
func (s *session) ID() string {
    return s.id
}

// Username return the session's resolved username.
func (s *session) Username() string {
    return s.username
}

// Address return the address this session connected from.
func (s *session) Address() string {
    return s.address
}

// Room return the session's current room, possibly nil.
func (s *session) Room() *room {
    s.mutex.Lock()
    defer s.mutex.Unlock()

    return s.current
}

// setRoom update the session's current room.
func (s *session) setRoom(r *room) {
    s.mutex.Lock()
    s.current = r
    s.mutex.Unlock()
}

// getCapability return the session's admin capability, empty if none was
// issued.
func (s *session) getCapability() string {
    s.mutex.Lock()
    defer s.mutex.Unlock()

    return s.capability
}

// setCapability store the admin capability issued to this session.
func (s *session) setCapability(token string) {
    s.mutex.Lock()
    s.capability = token
    s.mutex.Unlock()
}

// isRunning check if the session is still running.
func (s *session) isRunning() bool {
    return atomic.LoadUint32(&s.running) == 1
}

// send the raw `payload` to the remote endpoint.
func (s *session) send(payload string) error {
    if len(payload) == 0 {
        return nil
    }

    return s.conn.SendStr(payload)
}

// sendEvent encode and send a single event to the remote endpoint.
//
// Sending is fire-and-forget: on failure the session is simply closed,
// which detaches it from its room and from the server.
func (s *session) sendEvent(name string, data interface{}) {
    if s.send(encodeEvent(name, data)) != nil {
        s.Close()
    }
}

// handle decode a single inbound payload and dispatch it to the server.
//
// A malformed payload is dropped with a logged warning; nothing a remote
// client sends may take the process down.
func (s *session) handle(raw string) {
    var ev Event

    err := json.Unmarshal([]byte(raw), &ev)
    if err != nil {
        if s.srv.conf.Logger != nil {
            s.srv.conf.Logger.WithField("session", s.id).
                    Warn("dropping malformed event")
        }
        return
    }

    switch ev.Name {
    case EventAdminLogin:
        var req adminLoginRequest
        if json.Unmarshal(ev.Data, &req) == nil {
            s.srv.adminLogin(s, req.Password)
        }
    case EventAdminBan:
        var req adminBanRequest
        if json.Unmarshal(ev.Data, &req) == nil {
            s.srv.adminBanAddress(s, req.IP, req.Reason)
        }
    case EventAdminGlobalBlock:
        var req adminBlockRequest
        if json.Unmarshal(ev.Data, &req) == nil {
            s.srv.adminGlobalBlock(s, req.Enabled, req.Reason)
        }
    case EventAdminBanRoom:
        var req adminRoomRequest
        if json.Unmarshal(ev.Data, &req) == nil {
            s.srv.adminDeleteRoom(s, req.Room)
        }
    case EventGetAllUsers:
        s.srv.allUsers(s)
    case EventCreateRoom:
        var req roomRequest
        if json.Unmarshal(ev.Data, &req) == nil {
            s.srv.createRoom(s, req.Room, req.Password)
        }
    case EventJoinRoom:
        var req roomRequest
        if json.Unmarshal(ev.Data, &req) == nil {
            s.srv.joinRoom(s, req.Room, req.Password)
        }
    case EventLeaveRoom:
        s.srv.leaveRoom(s)
    case EventMessage:
        var text string
        if json.Unmarshal(ev.Data, &text) == nil {
            s.srv.message(s, text)
        }
    default:
        if s.srv.conf.Logger != nil {
            s.srv.conf.Logger.WithFields(logrus.Fields {
                "session": s.id,
                "event": ev.Name,
            }).Warn("dropping unknown event")
        }
    }
}

// run wait for new payloads from the user and dispatch them to the server.
func (s *session) run() {
    for s.isRunning() {
        msg, err := s.conn.Recv()
        if err != nil {
            s.Close()
            return
        }

        s.handle(msg)
    }
}

// Close the session's connection and detach it from the server and from
// its room, if any.
//
// This can safely be called multiple times (and from multiple goroutines),
// as it will only run on the first call.
func (s *session) Close() error {
    if atomic.CompareAndSwapUint32(&s.running, 1, 0) {
        s.conn.Close()
        s.srv.disconnect(s)
    }

    return nil
}

// newSession create a new session for `username`, receiving and sending
// events on `conn`.
//
// The caller is responsible for starting the receive loop, either in a new
// goroutine (`Connect`) or in its own (`ConnectAndWait`).
func newSession(id, username, address string, conn Conn, srv *server) *session {
    return &session {
        id: id,
        username: username,
        address: address,
        conn: conn,
        srv: srv,
        running: 1,
    }
}
