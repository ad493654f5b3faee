package anonchat

import (
    "strings"
    "sync"
    "unicode/utf8"
)

// Bounds on a nickname's length, in characters.
const minNickLen = 2
const maxNickLen = 24

// registry map network addresses to chosen nicknames.
//
// A nickname is bound to its address for the process' lifetime: there's no
// deregistration and no renaming. Nicknames are globally unique across every
// registered address, compared case-sensitively.
type registry struct {
    // nicks bound to each address.
    nicks map[string]string

    // order in which addresses registered.
    order []string

    // taken nicknames, for the uniqueness check.
    taken map[string]struct{}

    // lock fields that could be accessed concurrently.
    mutex sync.Mutex
}

// Resolve the nickname bound to `address`, if any.
func (r *registry) Resolve(address string) (string, bool) {
    r.mutex.Lock()
    nick, ok := r.nicks[address]
    r.mutex.Unlock()

    return nick, ok
}

// Register bind `nick` to `address`.
//
// The nickname is trimmed before validation and must have between
// `minNickLen` and `maxNickLen` characters. If the address already holds a
// nickname, that first registration wins and is simply returned.
func (r *registry) Register(address, nick string) (string, error) {
    nick = strings.TrimSpace(nick)
    if utf8.RuneCountInString(nick) < minNickLen {
        return "", NickTooShort
    } else if utf8.RuneCountInString(nick) > maxNickLen {
        return "", NickTooLong
    }

    r.mutex.Lock()
    defer r.mutex.Unlock()

    if cur, ok := r.nicks[address]; ok {
        return cur, nil
    }
    if _, ok := r.taken[nick]; ok {
        return "", NickTaken
    }

    r.nicks[address] = nick
    r.order = append(r.order, address)
    r.taken[nick] = struct{}{}

    return nick, nil
}

// All retrieve every address-to-nickname binding, in registration order.
func (r *registry) All() []IdentityEntry {
    r.mutex.Lock()
    defer r.mutex.Unlock()

    list := make([]IdentityEntry, 0, len(r.order))
    for _, address := range r.order {
        list = append(list, IdentityEntry {
            Address: address,
            Nick: r.nicks[address],
        })
    }

    return list
}

// newRegistry create an empty identity registry.
func newRegistry() *registry {
    return &registry {
        nicks: make(map[string]string),
        taken: make(map[string]struct{}),
    }
}
