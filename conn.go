package anonchat

import (
    "io"
)

// Conn is a generic interface for sending and receiving messages.
//
// The chat server is completely agnostic to the underlying transport: the
// caller upgrades whatever it's serving (a WebSocket, a TCP stream, a test
// double) into a `Conn` and hands it over on `Connect()`. From that point
// onward, the server owns the connection.
type Conn interface {
    io.Closer

    // Recv blocks until a new message was received.
    Recv() (string, error)

    // SendStr send `msg`, previously formatted by the caller.
    SendStr(msg string) error
}
