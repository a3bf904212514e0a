// Package session holds the identity a page runtime answers to: one session
// id minted per call activation plus any call ids the server bound to it.
package session

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// New mints a fresh session id
func New() string {
	return uuid.New().String()
}

// Valid reports whether id can address a session topic
func Valid(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && !strings.ContainsAny(id, "/ \t\r\n")
}

// Identity is the set of ids a page answers to. The primary id never
// changes; aliases are added as the server announces call ids for it.
type Identity struct {
	mu      sync.RWMutex
	primary string
	aliases map[string]bool
}

// NewIdentity creates an identity for id, minting one when id is empty
func NewIdentity(id string) *Identity {
	if id == "" {
		id = New()
	}
	return &Identity{primary: id, aliases: make(map[string]bool)}
}

// ID returns the primary session id
func (i *Identity) ID() string { return i.primary }

// Bind adds alias; it reports false when alias was already bound or invalid
func (i *Identity) Bind(alias string) bool {
	if !Valid(alias) || alias == i.primary {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.aliases[alias] {
		return false
	}
	i.aliases[alias] = true
	L_debug("session: alias bound", "session", i.primary, "alias", alias)
	return true
}

// Owns reports whether id is the primary id or a bound alias
func (i *Identity) Owns(id string) bool {
	if id == "" {
		return false
	}
	if id == i.primary {
		return true
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.aliases[id]
}

// IDs returns the primary id followed by the aliases in sorted order
func (i *Identity) IDs() []string {
	i.mu.RLock()
	aliases := make([]string, 0, len(i.aliases))
	for a := range i.aliases {
		aliases = append(aliases, a)
	}
	i.mu.RUnlock()
	sort.Strings(aliases)
	return append([]string{i.primary}, aliases...)
}
