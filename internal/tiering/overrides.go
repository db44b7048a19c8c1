package tiering

import "sync"

// Overrides holds the operator's pin and blacklist sets. Pins force a
// market into the hot tier; blacklisted markets are excluded from the watch
// set entirely. All operations are idempotent.
type Overrides struct {
	mu        sync.RWMutex
	pinned    map[string]struct{}
	blacklist map[string]struct{}
}

func NewOverrides() *Overrides {
	return &Overrides{
		pinned:    make(map[string]struct{}),
		blacklist: make(map[string]struct{}),
	}
}

// Load replaces both sets, typically from persisted state at startup.
func (o *Overrides) Load(pins, blacklist []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pinned = make(map[string]struct{}, len(pins))
	o.blacklist = make(map[string]struct{}, len(blacklist))
	for _, id := range blacklist {
		o.blacklist[id] = struct{}{}
	}
	for _, id := range pins {
		if _, banned := o.blacklist[id]; banned {
			continue
		}
		o.pinned[id] = struct{}{}
	}
}

func (o *Overrides) Pin(marketID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, banned := o.blacklist[marketID]; banned {
		return
	}
	o.pinned[marketID] = struct{}{}
}

func (o *Overrides) Unpin(marketID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pinned, marketID)
}

// Blacklist bans a market. A blacklisted market cannot stay pinned.
func (o *Overrides) Blacklist(marketID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blacklist[marketID] = struct{}{}
	delete(o.pinned, marketID)
}

func (o *Overrides) Unblacklist(marketID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.blacklist, marketID)
}

func (o *Overrides) IsPinned(marketID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.pinned[marketID]
	return ok
}

func (o *Overrides) IsBlacklisted(marketID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.blacklist[marketID]
	return ok
}

// Snapshot returns copies of both sets for persistence or assignment.
func (o *Overrides) Snapshot() (pins, blacklist []string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for id := range o.pinned {
		pins = append(pins, id)
	}
	for id := range o.blacklist {
		blacklist = append(blacklist, id)
	}
	return pins, blacklist
}
