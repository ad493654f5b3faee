package anonchat

// Error type for this package.
type ChatError uint

const (
    // Invalid token. Either the token doesn't exist, it has already been used
    // or it has already expired.
    InvalidToken ChatError = iota
    // The nickname has fewer than `minNickLen` characters.
    NickTooShort
    // The nickname has more than `maxNickLen` characters.
    NickTooLong
    // The nickname is already bound to another address.
    NickTaken
    // The room's name is empty (after trimming).
    EmptyRoomName
    // A room with the same name already exists.
    DuplicatedRoom
    // The requested room doesn't exist.
    InvalidRoom
    // The supplied password doesn't match the room's password.
    WrongPassword
    // The actor tried to send a message without having joined a room.
    NotInRoom
    // The actor isn't the room's owner.
    NotOwner
    // The actor's username is in the room's ban set.
    Banned
    // The actor's address is blocked, either globally or by the blacklist.
    Blocked
    // The session doesn't hold an admin capability.
    NotAdmin
    // The connection was closed by the remote endpoint.
    ConnEOF
    // A test waited too long for a response.
    TestTimeout
)

func (c ChatError) Error() string {
    switch c {
    case InvalidToken:
        return "Invalid token"
    case NickTooShort:
        return "The nickname is too short"
    case NickTooLong:
        return "The nickname is too long"
    case NickTaken:
        return "The nickname is already in use"
    case EmptyRoomName:
        return "The room's name may not be empty"
    case DuplicatedRoom:
        return "The room already exists"
    case InvalidRoom:
        return "The room doesn't exist"
    case WrongPassword:
        return "Wrong password"
    case NotInRoom:
        return "You are not in a room"
    case NotOwner:
        return "Only the room's owner may do that"
    case Banned:
        return "You are banned in this room"
    case Blocked:
        return "Access blocked"
    case NotAdmin:
        return "No admin privileges"
    case ConnEOF:
        return "The connection was closed"
    case TestTimeout:
        return "Timed out waiting for a response"
    default:
        return "Unknown error"
    }
}
