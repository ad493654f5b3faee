package anonchat

import (
    "sync"
)

// defBlockReason is reported when the global block is enabled without an
// explicit reason.
const defBlockReason = "Global block"

// gatekeeper hold the process-wide access control state: the global block
// flag with its reason, and the address blacklist.
//
// The gate is consulted before any room logic runs: a blocked actor never
// reaches the room directory. Both pieces of state are mutated only by
// admin actions and persist until the process exits.
type gatekeeper struct {
    // blocked disables the service for every non-admin actor.
    blocked bool

    // reason reported to blocked actors.
    reason string

    // blacklist of denied addresses.
    blacklist map[string]struct{}

    // lock fields that could be accessed concurrently.
    mutex sync.Mutex
}

// IsBlocked check whether `address` may use the service.
func (g *gatekeeper) IsBlocked(address string) bool {
    g.mutex.Lock()
    defer g.mutex.Unlock()

    if g.blocked {
        return true
    }
    _, banned := g.blacklist[address]
    return banned
}

// Reason retrieve the reason reported to blocked actors.
func (g *gatekeeper) Reason() string {
    g.mutex.Lock()
    defer g.mutex.Unlock()

    return g.reason
}

// SetGlobalBlock overwrite the global block flag and its reason. An empty
// `reason` falls back to `defBlockReason`.
func (g *gatekeeper) SetGlobalBlock(enabled bool, reason string) {
    if len(reason) == 0 {
        reason = defBlockReason
    }

    g.mutex.Lock()
    g.blocked = enabled
    g.reason = reason
    g.mutex.Unlock()
}

// BanAddress add `address` to the blacklist. Banning the same address twice
// is a no-op.
func (g *gatekeeper) BanAddress(address string) {
    g.mutex.Lock()
    g.blacklist[address] = struct{}{}
    g.mutex.Unlock()
}

// newGatekeeper create the access control state, with nothing blocked.
func newGatekeeper() *gatekeeper {
    return &gatekeeper {
        reason: defBlockReason,
        blacklist: make(map[string]struct{}),
    }
}
