// Package gobwas_ws_conn implements the Conn interface from
// github.com/Art444666/anonchat over a WebSocket connection from
// https://github.com/gobwas/ws.
package gobwas_ws_conn

import (
    "net"
    "net/http"
    "sync"
    "sync/atomic"

    anonchat "github.com/Art444666/anonchat"
    "github.com/gobwas/ws"
    "github.com/gobwas/ws/wsutil"
)

// defaultPing is sent on ping frames as the application data.
const defaultPing = "anonchat says hi"

// wsConn wrap a raw gobwas/ws connection into an anonchat.Conn.
type wsConn struct {
    // The underlying network connection, after the WebSocket upgrade.
    conn net.Conn

    // pending text frames already read but not yet returned by `Recv`.
    // gobwas may hand several frames back in a single read.
    pending []string

    // sendMutex synchronizes write operations on `conn`.
    sendMutex sync.Mutex

    // Whether the connection is currently active.
    active uint32
}

// isActive check if the connection is still active.
func (c *wsConn) isActive() bool {
    return atomic.LoadUint32(&c.active) == 1
}

// Close the connection.
func (c *wsConn) Close() error {
    if atomic.CompareAndSwapUint32(&c.active, 1, 0) {
        c.conn.Close()
    }

    return nil
}

// write a single frame, properly synchronizing the connection.
func (c *wsConn) write(op ws.OpCode, data []byte) error {
    if !c.isActive() {
        return anonchat.ConnEOF
    }

    c.sendMutex.Lock()
    err := wsutil.WriteServerMessage(c.conn, op, data)
    c.sendMutex.Unlock()

    if err != nil {
        c.Close()
        return anonchat.ConnEOF
    }
    return nil
}

// Recv blocks until a new message was received.
//
// Control frames are handled inline: pings are ponged back and pongs are
// ignored, so callers only ever see text payloads.
func (c *wsConn) Recv() (string, error) {
    for c.isActive() {
        if len(c.pending) > 0 {
            msg := c.pending[0]
            c.pending = c.pending[1:]
            return msg, nil
        }

        msgs, err := wsutil.ReadClientMessage(c.conn, nil)
        if err != nil {
            c.Close()
            return "", anonchat.ConnEOF
        }

        for i := range msgs {
            data := &msgs[i]
            switch data.OpCode {
            case ws.OpClose:
                c.Close()
                return "", anonchat.ConnEOF
            case ws.OpPing:
                err = c.write(ws.OpPong, data.Payload)
                if err != nil {
                    return "", err
                }
            case ws.OpPong:
                // Do nothing.
            case ws.OpText:
                c.pending = append(c.pending, string(data.Payload))
            default:
                // Ignore binary and continuation frames.
            }
        }
    }

    return "", anonchat.ConnEOF
}

// SendStr send `msg`, previously formatted by the caller.
func (c *wsConn) SendStr(msg string) error {
    if len(msg) == 0 {
        // In case of an empty message, just change it into a ping, to
        // check if the remote endpoint is alive.
        return c.write(ws.OpPing, []byte(defaultPing))
    }

    return c.write(ws.OpText, []byte(msg))
}

// NewConn upgrade a HTTP request to a Chat Connection.
func NewConn(w http.ResponseWriter, req *http.Request) (anonchat.Conn, error) {
    conn, _, _, err := ws.UpgradeHTTP(req, w)
    if err != nil {
        return nil, err
    }

    return &wsConn {
        conn: conn,
        active: 1,
    }, nil
}
