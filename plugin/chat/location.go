package chat

import "sync"

// ChatPathPrefix is the location of a persisted conversation, followed by "{id}-{name}".
const ChatPathPrefix = "/chat/"

// Locator receives navigation requests once a turn is persisted.
type Locator interface {
	Navigate(path string)
}

// HistoryLocator records navigation in memory, like a browser history stack.
type HistoryLocator struct {
	mu      sync.Mutex
	entries []string
}

func NewHistoryLocator() *HistoryLocator {
	return &HistoryLocator{}
}

// Navigate pushes path unless it is already the current location.
func (l *HistoryLocator) Navigate(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.entries); n > 0 && l.entries[n-1] == path {
		return
	}
	l.entries = append(l.entries, path)
}

// Current returns the current location, or "" before any navigation.
func (l *HistoryLocator) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1]
}

// History returns every location visited, oldest first.
func (l *HistoryLocator) History() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}
