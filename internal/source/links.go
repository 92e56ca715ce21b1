package source

import "sync"

// Links allocates and tracks the observed source links of one session.
// Registration fires the optional callback so the session can relay a
// sources-changed notification.
type Links struct {
	mu    sync.Mutex
	next  uint16
	links []Link
	onAdd func(Link)
}

// NewLinks creates a registry. onAdd may be nil.
func NewLinks(onAdd func(Link)) *Links {
	return &Links{onAdd: onAdd}
}

// Register assigns the next id to alias and returns the new link. An alias
// already registered keeps its link, so restarting an origin never mints a
// duplicate entry.
func (l *Links) Register(alias string) Link {
	l.mu.Lock()
	for _, link := range l.links {
		if link.Alias == alias {
			l.mu.Unlock()
			return link
		}
	}
	link := Link{ID: l.next, Alias: alias}
	l.next++
	l.links = append(l.links, link)
	onAdd := l.onAdd
	l.mu.Unlock()

	if onAdd != nil {
		onAdd(link)
	}
	return link
}

// All returns the registered links in registration order.
func (l *Links) All() []Link {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Link, len(l.links))
	copy(out, l.links)
	return out
}

// Lookup finds a link by id.
func (l *Links) Lookup(id uint16) (Link, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, link := range l.links {
		if link.ID == id {
			return link, true
		}
	}
	return Link{}, false
}

// LookupAlias finds a link by alias.
func (l *Links) LookupAlias(alias string) (Link, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, link := range l.links {
		if link.Alias == alias {
			return link, true
		}
	}
	return Link{}, false
}
