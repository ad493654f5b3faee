/*
Package anonchat implements a connection-agnostic anonymous chat service:
users register a nickname bound to their network address, create and join
named rooms (optionally password-protected), exchange messages, and room
owners moderate their room with `/ban` and `/unban`. A separate admin role
may blacklist addresses, toggle a global block and forcibly delete rooms.

The package is divided into a few components:

 - `ChatServer`: the interface for the actual server
 - `Conn`: a connection to the remote client
 - the identity registry, the access gate, the rooms and the sessions,
   which are never exported by the API

All state is kept in memory and lost on restart; there's deliberately no
persistence, no pagination and no capacity limit anywhere.

The first step to start a chat server is to instantiate it through
`NewServer` or `NewServerConf`. The latter should be the preferred variant,
as it's the one that allows the most customization:

    conf := anonchat.GetDefaultServerConf()
    // Modify 'conf' as desired
    server := anonchat.NewServerConf(conf)

Identities come first. The caller (usually an HTTP front end) resolves the
remote address and either finds a previously registered nickname or
registers a new one:

    nick, err := server.Register(addr, "Alice")
    if err != nil {
        // Too short, too long or already taken
    }

Since the `ChatServer` doesn't implement any transport, connecting takes
two steps. First request a token for the resolved address:

    token, err := server.RequestToken(addr)

Then upgrade whatever the front end is serving into a `Conn` and hand both
over. `conn_test.go` implements `mockConn`, which uses chan string to send
and receive messages; the `gorilla-ws-conn` and `gobwas-ws-conn`
subpackages implement `Conn` over a WebSocket connection:

    err := server.ConnectAndWait(token, conn)

From this point onward the remote client drives the session with JSON
events (`create_room`, `join_room`, `message`, the `admin_*` family), and
the server pushes `room_list`, `userlist`, chat lines and notices back.
Moderation and access control happen entirely inside this package: banned
users get their messages dropped with a private notice, blocked addresses
never reach the room directory, and only sessions holding an admin
capability (issued by `admin_login` against the shared secret) may touch
the privileged operations.
*/
package anonchat
