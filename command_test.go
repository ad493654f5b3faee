package anonchat

import (
    "testing"
)

// TestParseCommand check the tagged parse of chat payloads.
func TestParseCommand(t *testing.T) {
    tests := []struct {
        payload string
        want command
    } {
        { "hello there", command { kind: cmdChat, text: "hello there" } },
        { "/ban Eve", command { kind: cmdBan, target: "Eve" } },
        { "/unban Eve", command { kind: cmdUnban, target: "Eve" } },
        // The target is taken verbatim after the prefix and trimmed.
        { "/ban   Eve  ", command { kind: cmdBan, target: "Eve" } },
        { "/ban ", command { kind: cmdBan, target: "" } },
        // Prefixes must match exactly, trailing space included.
        { "/ban", command { kind: cmdChat, text: "/ban" } },
        { "/banana split", command { kind: cmdChat, text: "/banana split" } },
        { "/unbanned for real", command { kind: cmdChat, text: "/unbanned for real" } },
        { "", command { kind: cmdChat, text: "" } },
    }

    for _, tc := range tests {
        if want, got := tc.want, parseCommand(tc.payload); want != got {
            t.Errorf("Invalid parse of '%s': expected '%+v' but got '%+v'",
                    tc.payload, want, got)
        }
    }
}
