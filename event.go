package anonchat

import (
    "encoding/json"
)

// Events received from remote clients.
const (
    // EventAdminLogin request an admin capability: `{"password": "..."}`.
    EventAdminLogin = "admin_login"
    // EventAdminBan add an address to the blacklist: `{"ip": "...", "reason": "..."}`.
    EventAdminBan = "admin_ban"
    // EventAdminGlobalBlock toggle the global block: `{"enabled": bool, "reason": "..."}`.
    EventAdminGlobalBlock = "admin_global_block"
    // EventAdminBanRoom delete a room: `{"room": "..."}`.
    EventAdminBanRoom = "admin_ban_room"
    // EventGetAllUsers request the full identity registry. No payload.
    EventGetAllUsers = "get_all_users"
    // EventCreateRoom create a new room: `{"room": "...", "password": "..."}`.
    EventCreateRoom = "create_room"
    // EventJoinRoom join an existing room: `{"room": "...", "password": "..."}`.
    EventJoinRoom = "join_room"
    // EventLeaveRoom leave the current room. No payload.
    EventLeaveRoom = "leave_room"
    // EventMessage a chat payload for the current room: a JSON string.
    EventMessage = "message"
)

// Events sent to remote clients.
const (
    // EventRoomList the display list of available rooms.
    EventRoomList = "room_list"
    // EventRoomJoined confirm a join, carrying the room's name.
    EventRoomJoined = "room_joined"
    // EventRoomError a human-readable notice about a failed room operation.
    EventRoomError = "room_error"
    // EventAdminError a human-readable notice about a failed admin operation.
    EventAdminError = "admin_error"
    // EventAdminSuccess a human-readable notice about a completed admin
    // operation.
    EventAdminSuccess = "admin_success"
    // EventUserlist the presence list of a room.
    EventUserlist = "userlist"
    // EventRedirectAdmin hint the client to navigate to the admin view.
    EventRedirectAdmin = "redirect_admin"
    // EventAllUsers the full identity registry, admin only.
    EventAllUsers = "all_users"
)

// Event is the envelope exchanged with remote clients, in both directions.
type Event struct {
    // Name of the event.
    Name string `json:"event"`

    // Data carried by the event, decoded per event name.
    Data json.RawMessage `json:"data,omitempty"`
}

// roomRequest is the payload of `create_room` and `join_room`.
type roomRequest struct {
    Room string `json:"room"`
    Password string `json:"password"`
}

// adminLoginRequest is the payload of `admin_login`.
type adminLoginRequest struct {
    Password string `json:"password"`
}

// adminBanRequest is the payload of `admin_ban`.
type adminBanRequest struct {
    IP string `json:"ip"`
    Reason string `json:"reason"`
}

// adminBlockRequest is the payload of `admin_global_block`.
type adminBlockRequest struct {
    Enabled bool `json:"enabled"`
    Reason string `json:"reason"`
}

// adminRoomRequest is the payload of `admin_ban_room`.
type adminRoomRequest struct {
    Room string `json:"room"`
}

// Userlist is the presence of a single room: every username currently in
// the room's membership set, plus the room's owner. The owner need not be
// among the members.
type Userlist struct {
    Users []string `json:"users"`
    Owner string `json:"owner"`
}

// IdentityEntry is a single address-to-nickname binding, as reported to
// admins by `all_users`.
type IdentityEntry struct {
    Address string `json:"ip"`
    Nick string `json:"nickname"`
}

// encodeEvent pack `data` into the wire representation of the event `name`.
//
// Every payload in this package marshals cleanly, so an encoding failure
// yields the empty string, which delivery paths treat as "nothing to send".
func encodeEvent(name string, data interface{}) string {
    var raw json.RawMessage
    var err error

    if data != nil {
        raw, err = json.Marshal(data)
        if err != nil {
            return ""
        }
    }

    payload, err := json.Marshal(Event {
        Name: name,
        Data: raw,
    })
    if err != nil {
        return ""
    }

    return string(payload)
}

// encodeChat pack a chat line, as delivered to a room or to a single user.
func encodeChat(text string) string {
    return encodeEvent(EventMessage, text)
}
