package anonchat

import (
    "testing"
    "time"

    "github.com/stretchr/testify/require"
)

// waitUserlist pop userlist events until one satisfies `check`, failing
// the test if none does in time. Presence is rebroadcast after most
// membership events, so intermediate lists are expected and skipped.
func waitUserlist(t *testing.T, mc *mockConn, check func(Userlist) bool) Userlist {
    t.Helper()

    deadline := time.Now().Add(testWait)
    for time.Now().Before(deadline) {
        ev := waitEvent(t, mc, EventUserlist)

        var ul Userlist
        decodeData(t, ev, &ul)
        if check(ul) {
            return ul
        }
    }

    t.Fatal("Timed out waiting for the expected userlist")
    return Userlist{}
}

// contains check if `list` holds `want`.
func contains(list []string, want string) bool {
    for _, got := range list {
        if got == want {
            return true
        }
    }
    return false
}

// TestPublicRoomJoin check that a room created without a password is
// public and joinable with any password string.
func TestPublicRoomJoin(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    bob := connectUser(t, sv, "10.0.0.1", "Bob")
    eve := connectUser(t, sv, "10.0.0.2", "Eve")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "lobby" })

    ev := waitEvent(t, bob, EventRoomList)
    var list []string
    decodeData(t, ev, &list)
    require.Equal(t, []string { "lobby" }, list)

    sendEvent(t, bob, EventJoinRoom, roomRequest { Room: "lobby" })
    ev = waitEvent(t, bob, EventRoomJoined)
    var joined string
    decodeData(t, ev, &joined)
    require.Equal(t, "lobby", joined)

    // A public room ignores whatever password is supplied.
    sendEvent(t, eve, EventJoinRoom, roomRequest { Room: "lobby", Password: "anything" })
    waitEvent(t, eve, EventRoomJoined)

    waitChat(t, bob, "Eve joined the room lobby")

    waitUserlist(t, bob, func(ul Userlist) bool {
        return ul.Owner == "Bob" && contains(ul.Users, "Bob") &&
                contains(ul.Users, "Eve")
    })
}

// TestPrivateRoomJoin check that a private room requires an exact password
// match.
func TestPrivateRoomJoin(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    bob := connectUser(t, sv, "10.0.0.1", "Bob")
    eve := connectUser(t, sv, "10.0.0.2", "Eve")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "vip", Password: "x" })

    ev := waitEvent(t, eve, EventRoomList)
    var list []string
    decodeData(t, ev, &list)
    require.Equal(t, []string { "vip [приват]" }, list)

    // The empty password doesn't match.
    sendEvent(t, eve, EventJoinRoom, roomRequest { Room: "vip" })
    ev = waitEvent(t, eve, EventRoomError)
    var notice string
    decodeData(t, ev, &notice)
    require.Contains(t, notice, "Wrong password")

    sendEvent(t, eve, EventJoinRoom, roomRequest { Room: "vip", Password: "x" })
    waitEvent(t, eve, EventRoomJoined)
}

// TestOwnerBan run the full ban cycle: the owner bans a member, the
// member's messages turn into private notices, and unbanning restores
// delivery.
func TestOwnerBan(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    bob := connectUser(t, sv, "10.0.0.1", "Bob")
    eve := connectUser(t, sv, "10.0.0.2", "Eve")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "lobby" })
    sendEvent(t, bob, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, bob, EventRoomJoined)
    sendEvent(t, eve, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, eve, EventRoomJoined)

    sendEvent(t, bob, EventMessage, "/ban Eve")
    waitChat(t, eve, "Eve was banned by the owner Bob")

    // The banned member only ever gets a private notice back.
    sendEvent(t, eve, EventMessage, "hi")
    waitChat(t, eve, "You are banned in this room")
    assertNoChat(t, bob, "Eve: hi", time.Millisecond * 200)

    // Banning is idempotent.
    sendEvent(t, bob, EventMessage, "/ban Eve")
    waitChat(t, bob, "Eve was banned by the owner Bob")

    sendEvent(t, bob, EventMessage, "/unban Eve")
    waitChat(t, eve, "Eve was unbanned by the owner Bob")

    sendEvent(t, eve, EventMessage, "hi again")
    waitChat(t, bob, "Eve: hi again")

    // Unbanning is idempotent too.
    sendEvent(t, bob, EventMessage, "/unban Eve")
    waitChat(t, bob, "Eve was unbanned by the owner Bob")
}

// TestBanNonMember check that bans are by name: banning a username that
// never joined still blocks it after it joins.
func TestBanNonMember(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    bob := connectUser(t, sv, "10.0.0.1", "Bob")
    zed := connectUser(t, sv, "10.0.0.3", "Zed")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "lobby" })
    sendEvent(t, bob, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, bob, EventRoomJoined)

    sendEvent(t, bob, EventMessage, "/ban Zed")
    waitChat(t, bob, "Zed was banned by the owner Bob")

    // A banned username may still join: the ban only takes effect at
    // message time.
    sendEvent(t, zed, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, zed, EventRoomJoined)

    sendEvent(t, zed, EventMessage, "hello")
    waitChat(t, zed, "You are banned in this room")
    assertNoChat(t, bob, "Zed: hello", time.Millisecond * 200)
}

// TestOnlyOwnerModerates check that a non-owner's moderation commands
// never mutate the ban set.
func TestOnlyOwnerModerates(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    bob := connectUser(t, sv, "10.0.0.1", "Bob")
    eve := connectUser(t, sv, "10.0.0.2", "Eve")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "lobby" })
    sendEvent(t, bob, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, bob, EventRoomJoined)
    sendEvent(t, eve, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, eve, EventRoomJoined)

    sendEvent(t, eve, EventMessage, "/ban Bob")
    waitChat(t, eve, "Only the owner may ban")

    // Bob was never banned: his messages still go through.
    sendEvent(t, bob, EventMessage, "still here")
    waitChat(t, eve, "Bob: still here")
}

// TestMessageWithoutRoom check that a session without a current room can't
// send messages.
func TestMessageWithoutRoom(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    bob := connectUser(t, sv, "10.0.0.1", "Bob")

    sendEvent(t, bob, EventMessage, "anyone?")
    ev := waitEvent(t, bob, EventRoomError)
    var notice string
    decodeData(t, ev, &notice)
    require.Contains(t, notice, "not in a room")
}

// TestGlobalBlockPrecedence check that the global block overrides every
// room operation, even for previously valid sessions, and that the admin
// keeps operating.
func TestGlobalBlockPrecedence(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    admin := connectUser(t, sv, "10.0.0.100", "Administrator")
    bob := connectUser(t, sv, "10.0.0.1", "Bob")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "lobby" })
    sendEvent(t, bob, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, bob, EventRoomJoined)

    sendEvent(t, admin, EventAdminGlobalBlock, adminBlockRequest { Enabled: true })
    waitEvent(t, admin, EventAdminSuccess)

    // Bob's session was valid a moment ago; it's still blocked now.
    sendEvent(t, bob, EventMessage, "anyone?")
    ev := waitEvent(t, bob, EventRoomError)
    var notice string
    decodeData(t, ev, &notice)
    require.Contains(t, notice, "Access blocked")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "other" })
    waitEvent(t, bob, EventRoomError)
    require.Len(t, sv.Rooms(), 1)

    // The admin passes the gate and may lift the block.
    sendEvent(t, admin, EventAdminGlobalBlock, adminBlockRequest { Enabled: false })
    waitEvent(t, admin, EventAdminSuccess)

    sendEvent(t, bob, EventMessage, "back again")
    waitChat(t, bob, "Bob: back again")
}

// TestAdminBanAddress check the address blacklist: banned addresses lose
// access, other addresses don't, and non-admins can't mutate the list.
func TestAdminBanAddress(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    admin := connectUser(t, sv, "10.0.0.100", "Administrator")
    bob := connectUser(t, sv, "10.0.0.1", "Bob")
    eve := connectUser(t, sv, "10.0.0.2", "Eve")

    // A non-admin is rejected without mutation.
    sendEvent(t, bob, EventAdminBan, adminBanRequest { IP: "10.0.0.2" })
    ev := waitEvent(t, bob, EventAdminError)
    var notice string
    decodeData(t, ev, &notice)
    require.Contains(t, notice, "No admin privileges")
    require.False(t, sv.IsBlocked("10.0.0.2"))

    // A missing address is reported.
    sendEvent(t, admin, EventAdminBan, adminBanRequest { IP: "  " })
    waitEvent(t, admin, EventAdminError)

    sendEvent(t, admin, EventAdminBan, adminBanRequest { IP: "10.0.0.2", Reason: "spam" })
    waitEvent(t, admin, EventAdminSuccess)
    require.True(t, sv.IsBlocked("10.0.0.2"))

    // The blacklisted session can't reach the room directory anymore.
    sendEvent(t, eve, EventCreateRoom, roomRequest { Room: "lobby" })
    waitEvent(t, eve, EventRoomError)
    require.Empty(t, sv.Rooms())

    // Everyone else is unaffected.
    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "lobby" })
    waitEvent(t, bob, EventRoomList)
    require.Len(t, sv.Rooms(), 1)
}

// TestAdminLogin check that a regular session may earn a capability with
// the shared secret.
func TestAdminLogin(t *testing.T) {
    conf := GetDefaultServerConf()
    conf.AdminPass = "szechuan"

    sv := NewServerConf(conf)
    defer sv.Close()

    bob := connectUser(t, sv, "10.0.0.1", "Bob")

    sendEvent(t, bob, EventAdminLogin, adminLoginRequest { Password: "guess" })
    waitEvent(t, bob, EventAdminError)

    sendEvent(t, bob, EventAdminLogin, adminLoginRequest { Password: "szechuan" })
    waitEvent(t, bob, EventAdminSuccess)

    ev := waitEvent(t, bob, EventRedirectAdmin)
    var target string
    decodeData(t, ev, &target)
    require.Equal(t, "/admin", target)

    // The fresh capability unlocks privileged calls.
    sendEvent(t, bob, EventGetAllUsers, nil)
    ev = waitEvent(t, bob, EventAllUsers)
    var users []IdentityEntry
    decodeData(t, ev, &users)
    require.Contains(t, users, IdentityEntry { Address: "10.0.0.1", Nick: "Bob" })
}

// TestAdminDeleteRoom check that deleting a room evicts it everywhere: the
// directory, the listing and every member's current room.
func TestAdminDeleteRoom(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    admin := connectUser(t, sv, "10.0.0.100", "Administrator")
    bob := connectUser(t, sv, "10.0.0.1", "Bob")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "lobby" })
    sendEvent(t, bob, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, bob, EventRoomJoined)

    sendEvent(t, admin, EventAdminBanRoom, adminRoomRequest { Room: "lobby" })

    // The deletion is announced to every connection.
    ev := waitEvent(t, bob, EventAdminSuccess)
    var notice string
    decodeData(t, ev, &notice)
    require.Contains(t, notice, "deleted by the administrator")

    ev = waitEvent(t, bob, EventRoomList)
    var list []string
    decodeData(t, ev, &list)
    require.Empty(t, list)

    // Joining the deleted room fails for anyone.
    sendEvent(t, bob, EventJoinRoom, roomRequest { Room: "lobby" })
    ev = waitEvent(t, bob, EventRoomError)
    decodeData(t, ev, &notice)
    require.Contains(t, notice, "wasn't found")

    // The member's session fell back to no room at all.
    sendEvent(t, bob, EventMessage, "anyone?")
    ev = waitEvent(t, bob, EventRoomError)
    decodeData(t, ev, &notice)
    require.Contains(t, notice, "not in a room")

    // Deleting it again is reported as missing.
    sendEvent(t, admin, EventAdminBanRoom, adminRoomRequest { Room: "lobby" })
    waitEvent(t, admin, EventAdminError)
}

// TestDisconnectCleanup check that a dropped connection leaves its room's
// membership set, keeping presence consistent.
func TestDisconnectCleanup(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    bob := connectUser(t, sv, "10.0.0.1", "Bob")
    eve := connectUser(t, sv, "10.0.0.2", "Eve")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "lobby" })
    sendEvent(t, bob, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, bob, EventRoomJoined)
    sendEvent(t, eve, EventJoinRoom, roomRequest { Room: "lobby" })
    waitEvent(t, eve, EventRoomJoined)

    waitUserlist(t, bob, func(ul Userlist) bool {
        return contains(ul.Users, "Eve")
    })

    // The remote endpoint drops.
    eve.Close()

    waitChat(t, bob, "Eve left the room lobby")
    waitUserlist(t, bob, func(ul Userlist) bool {
        return !contains(ul.Users, "Eve") && contains(ul.Users, "Bob")
    })
}

// TestSwitchRoom check that joining another room leaves the previous one,
// so a session's membership always matches its current room.
func TestSwitchRoom(t *testing.T) {
    sv := NewServer()
    defer sv.Close()

    bob := connectUser(t, sv, "10.0.0.1", "Bob")
    eve := connectUser(t, sv, "10.0.0.2", "Eve")

    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "red" })
    sendEvent(t, bob, EventCreateRoom, roomRequest { Room: "blue" })

    sendEvent(t, bob, EventJoinRoom, roomRequest { Room: "red" })
    waitEvent(t, bob, EventRoomJoined)
    sendEvent(t, eve, EventJoinRoom, roomRequest { Room: "red" })
    waitEvent(t, eve, EventRoomJoined)

    sendEvent(t, eve, EventJoinRoom, roomRequest { Room: "blue" })
    waitEvent(t, eve, EventRoomJoined)

    waitChat(t, bob, "Eve left the room red")
    waitUserlist(t, bob, func(ul Userlist) bool {
        return !contains(ul.Users, "Eve")
    })

    // Messages land in the new room only.
    sendEvent(t, eve, EventMessage, "over here")
    assertNoChat(t, bob, "Eve: over here", time.Millisecond * 200)
}
