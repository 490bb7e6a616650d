package irc

import (
	"strings"

	"gopkg.in/irc.v4"
)

// Identity is a chat user as seen on the wire: nick!user@host
type Identity struct {
	Nick string
	User string
	Host string
}

// ParseIdentity splits "nick!user@host". All three parts must be present.
func ParseIdentity(s string) (Identity, bool) {
	bang := strings.IndexByte(s, '!')
	if bang <= 0 {
		return Identity{}, false
	}
	at := strings.IndexByte(s[bang+1:], '@')
	if at <= 0 {
		return Identity{}, false
	}
	id := Identity{
		Nick: s[:bang],
		User: s[bang+1 : bang+1+at],
		Host: s[bang+2+at:],
	}
	if id.Host == "" {
		return Identity{}, false
	}
	return id, true
}

// IdentityFromPrefix converts a message prefix. ok is false for server
// prefixes and anything missing a user or host.
func IdentityFromPrefix(p *irc.Prefix) (Identity, bool) {
	if p == nil || p.Name == "" || p.User == "" || p.Host == "" {
		return Identity{}, false
	}
	return Identity{Nick: p.Name, User: p.User, Host: p.Host}, true
}

// String returns the full hostmask, which is the key users are stored under
func (id Identity) String() string {
	return id.Nick + "!" + id.User + "@" + id.Host
}

// IsChannel reports whether target names a channel rather than a nick
func IsChannel(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}

// ValidTarget reports whether target can be sent as a single channel or nick
// parameter. Anything that would split or end the wire line is refused.
func ValidTarget(target string) bool {
	return target != "" && !strings.ContainsAny(target, " ,\r\n\x00") && !strings.HasPrefix(target, ":")
}
