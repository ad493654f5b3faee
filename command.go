package anonchat

import (
    "strings"
)

// Prefixes for the owner's moderation commands, embedded in chat payloads.
const banPrefix = "/ban "
const unbanPrefix = "/unban "

// commandKind tag the possible interpretations of a chat payload.
type commandKind uint

const (
    // A plain chat message.
    cmdChat commandKind = iota
    // The owner bans a username.
    cmdBan
    // The owner unbans a username.
    cmdUnban
)

// command is a chat payload after parsing. A moderation command carries the
// targeted username, taken verbatim after the prefix and trimmed; a plain
// message carries the original payload.
type command struct {
    kind commandKind
    target string
    text string
}

// parseCommand interpret `payload` as either an owner command or a plain
// chat message.
//
// The target of a moderation command isn't validated in any way: bans are
// by name, effective even against usernames that never joined the room.
func parseCommand(payload string) command {
    if strings.HasPrefix(payload, banPrefix) {
        return command {
            kind: cmdBan,
            target: strings.TrimSpace(payload[len(banPrefix):]),
        }
    } else if strings.HasPrefix(payload, unbanPrefix) {
        return command {
            kind: cmdUnban,
            target: strings.TrimSpace(payload[len(unbanPrefix):]),
        }
    }

    return command {
        kind: cmdChat,
        text: payload,
    }
}
