package anonchat

import (
    crand "crypto/rand"
    "crypto/subtle"
    "encoding/hex"
    "fmt"
    "io"
    "math/rand"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"
)

// For how long a given token should exist before being used or expiring.
const defTokenDeadline = time.Second * 30

// Delay between executions of the token cleanup routine.
const defTokenCleanupDelay = time.Minute * 5

// Default size of each room's delivery queue.
const defRoomQueue = 8

// Defaults carried over from the original service: the shared admin secret
// and the reserved admin nickname.
const defAdminPass = "1234"
const defAdminNick = "Administrator"

// ServerConf configure a chat server.
type ServerConf struct {
    // AdminPass is the single shared secret accepted by `admin_login`.
    AdminPass string

    // AdminNick is the reserved nickname whose sessions are issued an
    // admin capability at connection time.
    AdminNick string

    // RoomQueue is the size of each room's delivery queue.
    RoomQueue int

    // For how long a given token should exist before being used or
    // expiring.
    TokenDeadline time.Duration

    // Delay between executions of the token cleanup routine.
    TokenCleanupDelay time.Duration

    // Logger used by the server to report events. If this is nil, no
    // message shall be logged!
    Logger *logrus.Logger
}

// GetDefaultServerConf retrieve the default configurations for the chat
// server.
func GetDefaultServerConf() ServerConf {
    return ServerConf {
        AdminPass: defAdminPass,
        AdminNick: defAdminNick,
        RoomQueue: defRoomQueue,
        TokenDeadline: defTokenDeadline,
        TokenCleanupDelay: defTokenCleanupDelay,
    }
}

// RoomInfo describe a single room, as listed publicly.
type RoomInfo struct {
    // Name of the room.
    Name string

    // Whether a password is required to join.
    Private bool
}

// display format the room for the `room_list` event.
func (ri RoomInfo) display() string {
    if ri.Private {
        return ri.Name + " [приват]"
    }
    return ri.Name
}

// Ephemeral access token bound to a resolved identity.
type accessToken struct {
    // The username for whom the token was generated.
    username string

    // The address the identity was resolved from.
    address string

    // Expiration time for this token.
    deadline time.Time
}

// The chat server.
type server struct {
    // conf holds the server's configuration.
    conf ServerConf

    // registry of address-to-nickname bindings.
    registry *registry

    // gate holding the global block and the address blacklist.
    gate *gatekeeper

    // rooms currently available, keyed by name.
    rooms map[string]*room

    // roomOrder tracks the creation order of rooms, for listing.
    roomOrder []string

    // Synchronizes access to rooms and roomOrder.
    roomMutex sync.Mutex

    // sessions currently connected, keyed by connection id.
    sessions map[string]*session

    // Synchronizes access to sessions.
    sessionMutex sync.Mutex

    // Every currently active token. The token itself is used as the map's key.
    tokens map[string]*accessToken

    // Synchronizes access to tokens.
    tokenMutex sync.Mutex

    // capabilities issued to admin sessions, mapping token to connection id.
    capabilities map[string]string

    // Synchronizes access to capabilities.
    capMutex sync.Mutex

    // Whether the chat server is currently running.
    running uint32
}

// The public interface of the chat server.
type ChatServer interface {
    io.Closer

    // GetConf retrieve a copy of the server's configuration.
    GetConf() ServerConf

    // Register bind `nick` to `address` in the identity registry,
    // returning the effective nickname. See `registry.Register`.
    Register(address, nick string) (string, error)

    // Resolve the nickname bound to `address`, if any.
    Resolve(address string) (string, bool)

    // IsBlocked check whether `address` may use the service.
    IsBlocked(address string) bool

    // BlockReason retrieve the reason reported to blocked actors.
    BlockReason() string

    // AdminNick retrieve the reserved admin nickname.
    AdminNick() string

    // Rooms list every available room, in creation order.
    Rooms() []RoomInfo

    // RequestToken generate a token temporarily associating the identity
    // resolved from `address` to a future connection.
    //
    // This token should be requested from an authenticated and secure
    // channel. Then, the returned token may be sent in a `Connect()` to
    // identify the user.
    //
    // An address without a registered nickname is given an anonymous
    // guest identity.
    RequestToken(address string) (string, error)

    // Connect consume `token` and start a session over `conn`, handling
    // its events in a new goroutine.
    //
    // If `conn` is nil, then this function will panic!
    Connect(token string, conn Conn) error

    // ConnectAndWait consume `token` and start a session over `conn`,
    // blocking until the remote endpoint closes the connection.
    //
    // This may be advantageous if the external server already spawns a
    // new goroutine to handle each new connection.
    //
    // If `conn` is nil, then this function will panic!
    ConnectAndWait(token string, conn Conn) error
}

// Register bind `nick` to `address` in the identity registry.
func (sv *server) Register(address, nick string) (string, error) {
    return sv.registry.Register(address, nick)
}

// Resolve the nickname bound to `address`, if any.
func (sv *server) Resolve(address string) (string, bool) {
    return sv.registry.Resolve(address)
}

// IsBlocked check whether `address` may use the service.
func (sv *server) IsBlocked(address string) bool {
    return sv.gate.IsBlocked(address)
}

// BlockReason retrieve the reason reported to blocked actors.
func (sv *server) BlockReason() string {
    return sv.gate.Reason()
}

// AdminNick retrieve the reserved admin nickname.
func (sv *server) AdminNick() string {
    return sv.conf.AdminNick
}

// Rooms list every available room, in creation order.
func (sv *server) Rooms() []RoomInfo {
    sv.roomMutex.Lock()
    defer sv.roomMutex.Unlock()

    list := make([]RoomInfo, 0, len(sv.roomOrder))
    for _, name := range sv.roomOrder {
        r := sv.rooms[name]
        list = append(list, RoomInfo {
            Name: r.Name(),
            Private: r.Private(),
        })
    }

    return list
}

// getRoom retrieve the room named `name`, if it exists.
func (sv *server) getRoom(name string) (*room, bool) {
    sv.roomMutex.Lock()
    r, ok := sv.rooms[name]
    sv.roomMutex.Unlock()

    return r, ok
}

// randomToken generate a fresh token from a cryptographically secure
// source, encoded as a hexadecimal string.
func randomToken() (string, error) {
    var randToken [32]byte

    _, err := crand.Read(randToken[:])
    if err != nil {
        return "", err
    }

    return hex.EncodeToString(randToken[:]), nil
}

// RequestToken generate a token temporarily associating the identity
// resolved from `address` to a future connection.
//
// See `ChatServer.RequestToken` for a more complete description.
func (sv *server) RequestToken(address string) (string, error) {
    username, ok := sv.registry.Resolve(address)
    if !ok {
        // Anonymous fallback for addresses that skipped registration.
        username = fmt.Sprintf("Guest#%04d", rand.Intn(9000) + 1000)
    }

    token, err := randomToken()
    if err != nil {
        return "", err
    }

    sv.tokenMutex.Lock()
    sv.tokens[token] = &accessToken {
        username: username,
        address: address,
        deadline: time.Now().Add(sv.conf.TokenDeadline),
    }
    sv.tokenMutex.Unlock()

    return token, nil
}

// getToken consume the given `token`, removing it from the server, and
// return the associated `username` and `address`.
func (sv *server) getToken(token string) (string, string, error) {
    sv.tokenMutex.Lock()
    val, ok := sv.tokens[token]
    if ok {
        delete(sv.tokens, token)
    }
    sv.tokenMutex.Unlock()

    if !ok || time.Now().After(val.deadline) {
        return "", "", InvalidToken
    }

    return val.username, val.address, nil
}

// checkTokens verify, after `TokenCleanupDelay`, whether any token should
// be removed.
func (sv *server) checkTokens() {
    for atomic.LoadUint32(&sv.running) == 1 {
        time.Sleep(sv.conf.TokenCleanupDelay)

        sv.tokenMutex.Lock()
        now := time.Now()
        for key, val := range sv.tokens {
            if now.After(val.deadline) {
                delete(sv.tokens, key)
            }
        }
        sv.tokenMutex.Unlock()
    }
}

// issueCapability grant `s` an admin capability.
//
// The capability is an explicit per-connection token checked on each
// privileged call, never an ambient flag: it's bound to this session's
// connection id and revoked when the connection drops.
func (sv *server) issueCapability(s *session) error {
    // A relogin replaces any previously issued capability.
    sv.revokeCapability(s)

    token, err := randomToken()
    if err != nil {
        return err
    }

    sv.capMutex.Lock()
    sv.capabilities[token] = s.ID()
    sv.capMutex.Unlock()

    s.setCapability(token)
    return nil
}

// isAdmin check whether `s` holds a valid admin capability.
func (sv *server) isAdmin(s *session) bool {
    token := s.getCapability()
    if len(token) == 0 {
        return false
    }

    sv.capMutex.Lock()
    id, ok := sv.capabilities[token]
    sv.capMutex.Unlock()

    return ok && id == s.ID()
}

// revokeCapability drop any capability issued to `s`.
func (sv *server) revokeCapability(s *session) {
    token := s.getCapability()
    if len(token) == 0 {
        return
    }

    sv.capMutex.Lock()
    delete(sv.capabilities, token)
    sv.capMutex.Unlock()

    s.setCapability("")
}

// gated check the access gate for `s`, reporting the block to the actor.
//
// Sessions holding an admin capability bypass the gate, so the admin can
// still operate the service while it's globally blocked.
func (sv *server) gated(s *session) bool {
    if sv.isAdmin(s) {
        return false
    }

    if sv.gate.IsBlocked(s.Address()) {
        s.sendEvent(EventRoomError, Blocked.Error() + ": " + sv.gate.Reason())
        return true
    }

    return false
}

// connect consume `token` and create the session for `conn`.
func (sv *server) connect(token string, conn Conn) (*session, error) {
    if conn == nil {
        panic("anonchat server connect: nil conn")
    }

    username, address, err := sv.getToken(token)
    if err != nil {
        return nil, err
    }

    s := newSession(uuid.NewString(), username, address, conn, sv)

    sv.sessionMutex.Lock()
    sv.sessions[s.ID()] = s
    sv.sessionMutex.Unlock()

    // The reserved nickname is trusted as the admin without a login.
    if username == sv.conf.AdminNick {
        sv.issueCapability(s)
    }

    if sv.conf.Logger != nil {
        sv.conf.Logger.WithFields(logrus.Fields {
            "session": s.ID(),
            "user": username,
            "address": address,
        }).Info("session connected")
    }

    // Every fresh connection is greeted with the list of rooms.
    s.sendEvent(EventRoomList, sv.roomDisplayList())

    return s, nil
}

// Connect consume `token` and start a session over `conn`, handling its
// events in a new goroutine.
//
// See `ChatServer.Connect` for a more complete description.
func (sv *server) Connect(token string, conn Conn) error {
    s, err := sv.connect(token, conn)
    if err != nil {
        return err
    }

    go s.run()
    return nil
}

// ConnectAndWait consume `token` and start a session over `conn`, blocking
// until the remote endpoint closes the connection.
//
// See `ChatServer.ConnectAndWait` for a more complete description.
func (sv *server) ConnectAndWait(token string, conn Conn) error {
    s, err := sv.connect(token, conn)
    if err != nil {
        return err
    }

    s.run()
    return nil
}

// disconnect detach `s` from the server.
//
// The departing username is removed from its room's membership set, so the
// room's presence stays consistent with who can actually receive messages.
func (sv *server) disconnect(s *session) {
    sv.sessionMutex.Lock()
    delete(sv.sessions, s.ID())
    sv.sessionMutex.Unlock()

    sv.revokeCapability(s)

    if r := s.Room(); r != nil {
        s.setRoom(nil)
        if !r.IsClosed() {
            r.leave(s.Username())
        }
    }

    if sv.conf.Logger != nil {
        sv.conf.Logger.WithFields(logrus.Fields {
            "session": s.ID(),
            "user": s.Username(),
        }).Info("session disconnected")
    }
}

// broadcastAll send `payload` to every connected session, whatever room
// they are in (or none).
func (sv *server) broadcastAll(payload string) {
    if len(payload) == 0 {
        return
    }

    var failed []*session

    sv.sessionMutex.Lock()
    for _, s := range sv.sessions {
        if s.send(payload) != nil {
            failed = append(failed, s)
        }
    }
    sv.sessionMutex.Unlock()

    for _, s := range failed {
        s.Close()
    }
}

// roomDisplayList format every room for the `room_list` event.
func (sv *server) roomDisplayList() []string {
    rooms := sv.Rooms()

    list := make([]string, 0, len(rooms))
    for _, ri := range rooms {
        list = append(list, ri.display())
    }

    return list
}

// broadcastRoomList push the refreshed room list to every connection.
func (sv *server) broadcastRoomList() {
    sv.broadcastAll(encodeEvent(EventRoomList, sv.roomDisplayList()))
}

// createRoom handle a `create_room` event from `s`.
//
// The creator becomes the room's owner; a non-empty password makes the
// room private. The room's membership and ban sets are allocated
// atomically with the room itself.
func (sv *server) createRoom(s *session, name, password string) error {
    if sv.gated(s) {
        return Blocked
    }

    name = strings.TrimSpace(name)
    password = strings.TrimSpace(password)

    if len(name) == 0 {
        s.sendEvent(EventRoomError, "A room name is required.")
        return EmptyRoomName
    }

    sv.roomMutex.Lock()
    if _, ok := sv.rooms[name]; ok {
        sv.roomMutex.Unlock()
        s.sendEvent(EventRoomError, "The room already exists.")
        return DuplicatedRoom
    }
    r := newRoom(name, s.Username(), password, sv.conf.RoomQueue, sv.conf.Logger)
    sv.rooms[name] = r
    sv.roomOrder = append(sv.roomOrder, name)
    sv.roomMutex.Unlock()

    if sv.conf.Logger != nil {
        sv.conf.Logger.WithFields(logrus.Fields {
            "room": name,
            "owner": s.Username(),
            "private": r.Private(),
        }).Info("room created")
    }

    sv.broadcastRoomList()
    return nil
}

// joinRoom handle a `join_room` event from `s`.
//
// A session already in another room leaves it first, so its membership
// always matches its current room. Bans are deliberately not checked here:
// a banned user may join and is only stopped when trying to speak.
func (sv *server) joinRoom(s *session, name, password string) error {
    if sv.gated(s) {
        return Blocked
    }

    name = strings.TrimSpace(name)
    password = strings.TrimSpace(password)

    r, ok := sv.getRoom(name)
    if !ok {
        s.sendEvent(EventRoomError, "The room wasn't found.")
        return InvalidRoom
    }

    if cur := s.Room(); cur != nil && cur != r {
        s.setRoom(nil)
        cur.leave(s.Username())
    }

    err := r.join(s, password)
    if err != nil {
        s.sendEvent(EventRoomError, "Wrong password.")
        return err
    }

    s.setRoom(r)
    s.sendEvent(EventRoomJoined, r.Name())
    return nil
}

// leaveRoom handle a `leave_room` event from `s`.
func (sv *server) leaveRoom(s *session) error {
    if sv.gated(s) {
        return Blocked
    }

    r := s.Room()
    if r == nil {
        return NotInRoom
    }

    s.setRoom(nil)
    r.leave(s.Username())
    return nil
}

// message handle a chat payload from `s`, routing it through its current
// room's moderation state machine.
func (sv *server) message(s *session, text string) error {
    if sv.gated(s) {
        return Blocked
    }

    r := s.Room()
    if r == nil {
        s.sendEvent(EventRoomError, NotInRoom.Error() + ".")
        return NotInRoom
    }

    r.handleChat(s, text)
    return nil
}

// adminLogin handle an `admin_login` event from `s`.
//
// On a match against the shared secret, the session is issued an explicit
// capability and told to navigate to the privileged view. A mismatch gets
// a generic failure: no lockout, no rate limiting.
func (sv *server) adminLogin(s *session, password string) {
    if subtle.ConstantTimeCompare([]byte(password), []byte(sv.conf.AdminPass)) != 1 {
        s.sendEvent(EventAdminError, "Wrong password.")
        return
    }

    err := sv.issueCapability(s)
    if err != nil {
        s.sendEvent(EventAdminError, "Couldn't grant admin access.")
        return
    }

    if sv.conf.Logger != nil {
        sv.conf.Logger.WithFields(logrus.Fields {
            "session": s.ID(),
            "user": s.Username(),
        }).Info("admin capability issued")
    }

    s.sendEvent(EventAdminSuccess, "Admin mode enabled.")
    s.sendEvent(EventRedirectAdmin, "/admin")
}

// adminBanAddress handle an `admin_ban` event from `s`.
func (sv *server) adminBanAddress(s *session, address, reason string) {
    if !sv.isAdmin(s) {
        s.sendEvent(EventAdminError, NotAdmin.Error() + ".")
        return
    }

    address = strings.TrimSpace(address)
    if len(address) == 0 {
        s.sendEvent(EventAdminError, "No IP given.")
        return
    }

    sv.gate.BanAddress(address)

    if sv.conf.Logger != nil {
        sv.conf.Logger.WithFields(logrus.Fields {
            "address": address,
            "reason": reason,
        }).Info("address blacklisted")
    }

    s.sendEvent(EventAdminSuccess, "IP " + address + " added to the blacklist.")
}

// adminGlobalBlock handle an `admin_global_block` event from `s`.
func (sv *server) adminGlobalBlock(s *session, enabled bool, reason string) {
    if !sv.isAdmin(s) {
        s.sendEvent(EventAdminError, NotAdmin.Error() + ".")
        return
    }

    sv.gate.SetGlobalBlock(enabled, reason)

    if sv.conf.Logger != nil {
        sv.conf.Logger.WithFields(logrus.Fields {
            "enabled": enabled,
            "reason": reason,
        }).Info("global block toggled")
    }

    if enabled {
        s.sendEvent(EventAdminSuccess, "Global block enabled.")
    } else {
        s.sendEvent(EventAdminSuccess, "Global block disabled.")
    }
}

// adminDeleteRoom handle an `admin_ban_room` event from `s`.
//
// The room, its membership set and its ban set are discarded together, and
// every session still pointing at the room has its current room cleared.
func (sv *server) adminDeleteRoom(s *session, name string) {
    if !sv.isAdmin(s) {
        s.sendEvent(EventAdminError, NotAdmin.Error() + ".")
        return
    }

    name = strings.TrimSpace(name)

    sv.roomMutex.Lock()
    r, ok := sv.rooms[name]
    if ok {
        delete(sv.rooms, name)
        for i, k := range sv.roomOrder {
            if k == name {
                sv.roomOrder = append(sv.roomOrder[:i], sv.roomOrder[i + 1:]...)
                break
            }
        }
    }
    sv.roomMutex.Unlock()

    if !ok {
        s.sendEvent(EventAdminError, "The room wasn't found.")
        return
    }

    r.Close()

    sv.sessionMutex.Lock()
    var orphans []*session
    for _, other := range sv.sessions {
        if other.Room() == r {
            orphans = append(orphans, other)
        }
    }
    sv.sessionMutex.Unlock()
    for _, other := range orphans {
        other.setRoom(nil)
    }

    if sv.conf.Logger != nil {
        sv.conf.Logger.WithField("room", name).Info("room deleted by the admin")
    }

    sv.broadcastAll(encodeEvent(EventAdminSuccess,
            "The room \"" + name + "\" was deleted by the administrator."))
    sv.broadcastRoomList()
}

// allUsers handle a `get_all_users` event from `s`, dumping the entire
// identity registry back to the requesting connection.
func (sv *server) allUsers(s *session) {
    if !sv.isAdmin(s) {
        s.sendEvent(EventAdminError, NotAdmin.Error() + ".")
        return
    }

    s.sendEvent(EventAllUsers, sv.registry.All())
}

// Close the server: stop every room, drop every session and stop the
// token cleanup goroutine.
func (sv *server) Close() error {
    if !atomic.CompareAndSwapUint32(&sv.running, 1, 0) {
        return nil
    }

    sv.roomMutex.Lock()
    for _, r := range sv.rooms {
        r.Close()
    }
    sv.rooms = make(map[string]*room)
    sv.roomOrder = nil
    sv.roomMutex.Unlock()

    sv.sessionMutex.Lock()
    sessions := make([]*session, 0, len(sv.sessions))
    for _, s := range sv.sessions {
        sessions = append(sessions, s)
    }
    sv.sessionMutex.Unlock()

    for _, s := range sessions {
        s.Close()
    }

    return nil
}

// NewServerConf create a new chat server from `conf`.
//
// `NewServerConf()` executes a new goroutine to clean up expired tokens.
// To stop this goroutine and clean up the server's resources, call
// `Close()`.
func NewServerConf(conf ServerConf) ChatServer {
    if conf.RoomQueue <= 0 {
        conf.RoomQueue = defRoomQueue
    }
    if conf.TokenDeadline <= 0 {
        conf.TokenDeadline = defTokenDeadline
    }
    if conf.TokenCleanupDelay <= 0 {
        conf.TokenCleanupDelay = defTokenCleanupDelay
    }

    sv := &server {
        conf: conf,
        registry: newRegistry(),
        gate: newGatekeeper(),
        rooms: make(map[string]*room),
        sessions: make(map[string]*session),
        tokens: make(map[string]*accessToken),
        capabilities: make(map[string]string),
        running: 1,
    }

    // Start the clean up goroutine for expired tokens.
    go sv.checkTokens()

    return sv
}

// NewServer create a new chat server with the default configuration.
func NewServer() ChatServer {
    return NewServerConf(GetDefaultServerConf())
}

// GetConf retrieve a copy of the server's configuration.
func (sv *server) GetConf() ServerConf {
    return sv.conf
}
