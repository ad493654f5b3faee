package anonchat

import (
    "sort"
    "sync"
    "sync/atomic"

    "github.com/sirupsen/logrus"
)

// delivery represent an outbound, already-encoded event queued on a room.
type delivery struct {
    // payload to be sent, already in its wire representation.
    payload string

    // To whom the payload will be sent. Empty for room broadcasts.
    to string
}

// A chat room, to which users may connect to.
//
// The room owns three pieces of state: the set of usernames currently in
// the room (its membership), the set of banned usernames, and the sessions
// currently attached to it for delivery. Membership and bans are
// independent: a banned username may still be a member, and may even join
// after being banned. The ban only takes effect when that user tries to
// speak.
type room struct {
    // name of this room.
    name string

    // owner of this room, set once at creation and never reassigned. The
    // owner need not be a current member.
    owner string

    // Whether a password is required to join.
    private bool

    // password required to join, empty iff the room is public. Stored and
    // compared in plaintext, which is only fit for this toy scope.
    password string

    // members is the authoritative membership set of the room.
    members map[string]struct{}

    // bans is the set of banned usernames, mutated only by the owner.
    bans map[string]struct{}

    // sessions currently attached to this room for delivery.
    sessions map[string]*session

    // recv deliveries queued for fan-out.
    recv chan *delivery

    // lock fields that could be accessed concurrently.
    mutex sync.Mutex

    // Whether the room is currently running.
    running uint32

    // stop signals, by getting closed, that the room should get closed.
    stop chan struct{}

    // logger used by the room to report events. If this is nil, no
    // message shall be logged!
    logger *logrus.Logger
}

// Name retrieve the room's name.
func (r *room) Name() string {
    return r.name
}

// Owner retrieve the username that created the room.
func (r *room) Owner() string {
    return r.owner
}

// Private check whether a password is required to join the room.
func (r *room) Private() bool {
    return r.private
}

// checkPassword check whether `password` grants access to the room.
//
// Public rooms accept any password, including the empty one.
func (r *room) checkPassword(password string) bool {
    return !r.private || r.password == password
}

// Members retrieve the current membership set, sorted for stable output.
func (r *room) Members() []string {
    r.mutex.Lock()
    list := make([]string, 0, len(r.members))
    for k := range r.members {
        list = append(list, k)
    }
    r.mutex.Unlock()

    sort.Strings(list)
    return list
}

// isMember check whether `username` is in the membership set.
func (r *room) isMember(username string) bool {
    r.mutex.Lock()
    _, ok := r.members[username]
    r.mutex.Unlock()

    return ok
}

// isBanned check whether `username` is in the ban set.
func (r *room) isBanned(username string) bool {
    r.mutex.Lock()
    _, ok := r.bans[username]
    r.mutex.Unlock()

    return ok
}

// ban add `target` to the room's ban set. Banning the same username twice
// is a no-op, and the target needn't be a member, or even exist: bans are
// by name, effective against future joiners.
func (r *room) ban(target string) {
    r.mutex.Lock()
    r.bans[target] = struct{}{}
    r.mutex.Unlock()
}

// unban remove `target` from the room's ban set, if present.
func (r *room) unban(target string) {
    r.mutex.Lock()
    delete(r.bans, target)
    r.mutex.Unlock()
}

// IsClosed check if the room is closed.
func (r *room) IsClosed() bool {
    return atomic.LoadUint32(&r.running) == 0
}

// join add the session's user to the room's membership set and attach the
// session for delivery.
//
// Joining is idempotent: rejoining an already-joined username simply
// refreshes the attached session. Bans are deliberately not checked here;
// a banned user may join and will only be stopped when trying to speak.
func (r *room) join(s *session, password string) error {
    if !r.checkPassword(password) {
        return WrongPassword
    }

    username := s.Username()

    r.mutex.Lock()
    r.members[username] = struct{}{}
    r.sessions[username] = s
    r.mutex.Unlock()

    if r.logger != nil {
        r.logger.WithFields(logrus.Fields {
            "room": r.name,
            "user": username,
        }).Debug("user joined the room")
    }

    r.broadcast(encodeChat(username + " joined the room " + r.name + "."))
    r.announcePresence()

    return nil
}

// leave remove `username` from the room's membership set and detach its
// session, announcing the departure if the user was indeed a member.
func (r *room) leave(username string) {
    r.mutex.Lock()
    _, wasMember := r.members[username]
    delete(r.members, username)
    delete(r.sessions, username)
    r.mutex.Unlock()

    if !wasMember {
        return
    }

    if r.logger != nil {
        r.logger.WithFields(logrus.Fields {
            "room": r.name,
            "user": username,
        }).Debug("user left the room")
    }

    r.broadcast(encodeChat(username + " left the room " + r.name + "."))
    r.announcePresence()
}

// handleChat run a single chat payload from `s` through the moderation
// state machine.
//
// A banned actor only ever gets a private notice back, whatever the
// payload. Otherwise the payload is parsed into a tagged command: `/ban`
// and `/unban` mutate the ban set when the actor owns the room, anything
// else is broadcast as a plain message. The room's presence is rebroadcast
// after every branch except the banned short-circuit.
func (r *room) handleChat(s *session, payload string) {
    username := s.Username()

    if r.isBanned(username) {
        r.whisper(encodeChat(Banned.Error()+"."), username)
        return
    }

    cmd := parseCommand(payload)
    switch cmd.kind {
    case cmdBan:
        if username == r.owner {
            r.ban(cmd.target)
            r.broadcast(encodeChat(cmd.target + " was banned by the owner " + username + "."))
        } else {
            r.whisper(encodeChat("Only the owner may ban."), username)
        }
    case cmdUnban:
        if username == r.owner {
            r.unban(cmd.target)
            r.broadcast(encodeChat(cmd.target + " was unbanned by the owner " + username + "."))
        } else {
            r.whisper(encodeChat("Only the owner may unban."), username)
        }
    default:
        r.broadcast(encodeChat(username + ": " + cmd.text))
    }

    r.announcePresence()
}

// announcePresence queue the room's current presence (its membership set
// and owner) for every attached session.
func (r *room) announcePresence() {
    r.queue(&delivery {
        payload: encodeEvent(EventUserlist, Userlist {
            Users: r.Members(),
            Owner: r.owner,
        }),
    })
}

// broadcast queue `payload` for every session attached to the room.
func (r *room) broadcast(payload string) {
    r.queue(&delivery {
        payload: payload,
    })
}

// whisper queue `payload` for the session attached as `to` only.
func (r *room) whisper(payload, to string) {
    r.queue(&delivery {
        payload: payload,
        to: to,
    })
}

// queue `d` for fan-out, unless the room already stopped.
func (r *room) queue(d *delivery) {
    if r.IsClosed() || len(d.payload) == 0 {
        return
    }

    select {
    case r.recv <- d:
    case <-r.stop:
    }
}

// deliver fan `d` out to its target sessions.
//
// Delivery is fire-and-forget: a connection that fails to take the payload
// is detached from the room and closed, and nothing is retried.
func (r *room) deliver(d *delivery) {
    var failed []*session

    r.mutex.Lock()
    if len(d.to) > 0 {
        if s, ok := r.sessions[d.to]; ok {
            if s.send(d.payload) != nil {
                delete(r.sessions, d.to)
                failed = append(failed, s)
            }
        }
    } else {
        for k, s := range r.sessions {
            if s.send(d.payload) != nil {
                delete(r.sessions, k)
                failed = append(failed, s)
            }
        }
    }
    r.mutex.Unlock()

    for _, s := range failed {
        if r.logger != nil {
            r.logger.WithFields(logrus.Fields {
                "room": r.name,
                "user": s.Username(),
            }).Debug("dropping unreachable connection")
        }

        // Closing a session makes it leave its room, which queues more
        // deliveries. Do that outside the fan-out goroutine so a full
        // queue can't wedge itself.
        go s.Close()
    }
}

// run the room, fanning out every queued delivery.
//
// When `newRoom()` is called, `r.run()` is executed in a new goroutine.
// `r.Close()` should be called to stop the goroutine and clean up its
// resources.
func (r *room) run() {
    for {
        select {
        case <-r.stop:
            return
        case d := <-r.recv:
            r.deliver(d)
        }
    }
}

// Close the room, detach every session and stop the goroutine.
//
// Attached sessions are left open: the room going away doesn't disconnect
// its users, it only stops delivering to them.
func (r *room) Close() error {
    // Atomically check if `r.running` is 1 and set it to 0. If this
    // returns true, the swap happened and thus this is the first time
    // that `r.Close()` was called.
    if atomic.CompareAndSwapUint32(&r.running, 1, 0) {
        if r.logger != nil {
            r.logger.WithField("room", r.name).Debug("closing room")
        }
        close(r.stop)

        r.mutex.Lock()
        r.sessions = make(map[string]*session)
        r.mutex.Unlock()
    }

    return nil
}

// newRoom create a new room named `name`, owned by `owner`.
//
// The room is private iff `password` is non-empty. Its membership and ban
// sets are allocated empty, atomically with the room itself: there's never
// a room without its sets.
//
// `newRoom()` executes a new goroutine to fan out queued deliveries. To
// stop this goroutine and clean up its resources, call `r.Close()`.
func newRoom(name, owner, password string, queue int, logger *logrus.Logger) *room {
    r := &room {
        name: name,
        owner: owner,
        private: len(password) > 0,
        password: password,
        members: make(map[string]struct{}),
        bans: make(map[string]struct{}),
        sessions: make(map[string]*session),
        recv: make(chan *delivery, queue),
        running: 1,
        stop: make(chan struct{}),
        logger: logger,
    }

    go r.run()

    return r
}
