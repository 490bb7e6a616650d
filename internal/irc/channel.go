package irc

import (
	"strings"
	"sync"
)

// ChannelList holds the primary channel and the auto-join list. The list
// can be edited at runtime; the next welcome joins whatever it holds then.
type ChannelList struct {
	mu       sync.RWMutex
	primary  string
	autoJoin []string
}

// NewChannelList creates a channel list. Repeated auto-join entries are
// dropped.
func NewChannelList(primary string, autoJoin []string) *ChannelList {
	cl := &ChannelList{primary: primary}
	for _, ch := range autoJoin {
		cl.Add(ch)
	}
	return cl
}

// Primary returns the primary channel
func (cl *ChannelList) Primary() string {
	return cl.primary
}

// Add appends channel to the auto-join list. It reports false when the
// channel is already listed.
func (cl *ChannelList) Add(channel string) bool {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return false
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.indexLocked(channel) >= 0 {
		return false
	}
	cl.autoJoin = append(cl.autoJoin, channel)
	return true
}

// Remove drops channel from the auto-join list. It reports false when the
// channel was not listed.
func (cl *ChannelList) Remove(channel string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	i := cl.indexLocked(channel)
	if i < 0 {
		return false
	}
	cl.autoJoin = append(cl.autoJoin[:i], cl.autoJoin[i+1:]...)
	return true
}

func (cl *ChannelList) indexLocked(channel string) int {
	for i, ch := range cl.autoJoin {
		if strings.EqualFold(ch, channel) {
			return i
		}
	}
	return -1
}

// AutoJoin returns a copy of the auto-join list in configured order
func (cl *ChannelList) AutoJoin() []string {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	out := make([]string, len(cl.autoJoin))
	copy(out, cl.autoJoin)
	return out
}

// JoinOrder returns the channels to join after registration: the primary
// channel first, then the auto-join list, skipping duplicates
func (cl *ChannelList) JoinOrder() []string {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	var out []string
	seen := make(map[string]bool, len(cl.autoJoin)+1)
	for _, ch := range append([]string{cl.primary}, cl.autoJoin...) {
		key := strings.ToLower(ch)
		if ch == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ch)
	}
	return out
}
