// Package preference parses and serializes a resident's notification channel preference.
//
// The stored form is a "+"-joined list of channels ("email+whatsapp") or one of the legacy
// aliases ("ambos", "todos", "all"). The parsed form is an ordered Set with the known channels
// first in canonical order (email, telegram, whatsapp) followed by unknown channels in the order
// they were first seen. A parsed Set is never empty: it falls back to {email}.
package preference

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Channel is a notification delivery channel.
// Email, Telegram and WhatsApp are the known variants; any other value is an unknown channel
// kept for forward compatibility.
type Channel string

// Known channels.
const (
	Email    Channel = "email"
	Telegram Channel = "telegram"
	WhatsApp Channel = "whatsapp"
)

// Separator joins channels in the stored preference string.
const Separator = "+"

// ErrInvalidChannel is returned by Add for a channel that cannot be stored as a single token.
var ErrInvalidChannel = errors.New("invalid channel")

// Bounds for unknown channel tokens.
const (
	maxUnknownChannels = 8
	maxTokenLength     = 32
)

var canonicalOrder = []Channel{Email, Telegram, WhatsApp}

var aliases = map[string][]Channel{
	"ambos": {Email, Telegram},
	"todos": {Email, Telegram, WhatsApp},
	"all":   {Email, Telegram, WhatsApp},
}

var labels = map[Channel]string{
	Email:    "Correo electrónico",
	Telegram: "Telegram",
	WhatsApp: "WhatsApp",
}

// Known reports whether c is one of the built-in channels.
func (c Channel) Known() bool {
	switch c {
	case Email, Telegram, WhatsApp:
		return true
	}
	return false
}

// String returns the channel token.
func (c Channel) String() string {
	return string(c)
}

// Label returns the Spanish display label of the channel.
func (c Channel) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	// cases.Caser is stateful, a fresh one per call keeps Label safe for concurrent use.
	return cases.Title(language.Spanish).String(strings.ReplaceAll(string(c), "_", " "))
}

// KnownChannels returns the built-in channels in canonical order.
func KnownChannels() []Channel {
	out := make([]Channel, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

// ParseChannel converts a single token into a known channel.
func ParseChannel(s string) (Channel, bool) {
	c := Channel(s).normalize()
	return c, c.Known()
}

func (c Channel) normalize() Channel {
	return Channel(strings.ToLower(strings.TrimSpace(string(c))))
}

// Set is an ordered, duplicate-free set of channels.
type Set struct {
	channels []Channel
}

// Parse converts a stored preference string into a channel set.
// Tokens are split on "+", trimmed and lowercased; aliases are expanded. Unknown tokens are
// kept verbatim unless they are longer than 32 characters or hold control characters, and only
// the first 8 of them survive. An empty result falls back to {email}.
func Parse(pref string) Set {
	var tokens []Channel
	for _, raw := range strings.Split(pref, Separator) {
		tok := Channel(raw).normalize()
		if tok == "" {
			continue
		}
		if expanded, ok := aliases[string(tok)]; ok {
			tokens = append(tokens, expanded...)
			continue
		}
		tokens = append(tokens, tok)
	}

	set := newSet(tokens)
	if set.Len() == 0 {
		return Set{channels: []Channel{Email}}
	}
	return set
}

// NewSet builds a set from channels, normalizing order. Unlike Parse it may return an empty set.
func NewSet(channels ...Channel) Set {
	return newSet(channels)
}

func newSet(channels []Channel) Set {
	seen := make(map[Channel]bool, len(channels))
	var unknown []Channel

	for _, c := range channels {
		if seen[c] {
			continue
		}
		if c.Known() {
			seen[c] = true
			continue
		}
		if !validUnknown(c) || len(unknown) >= maxUnknownChannels {
			continue
		}
		seen[c] = true
		unknown = append(unknown, c)
	}

	out := make([]Channel, 0, len(seen))
	for _, c := range canonicalOrder {
		if seen[c] {
			out = append(out, c)
		}
	}
	out = append(out, unknown...)

	return Set{channels: out}
}

func validUnknown(c Channel) bool {
	if c == "" || utf8.RuneCountInString(string(c)) > maxTokenLength || strings.Contains(string(c), Separator) {
		return false
	}
	for _, r := range string(c) {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// Channels returns a copy of the channels in order.
func (s Set) Channels() []Channel {
	out := make([]Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// Len returns the number of channels.
func (s Set) Len() int {
	return len(s.channels)
}

// Contains reports whether c is in the set.
func (s Set) Contains(c Channel) bool {
	for _, ch := range s.channels {
		if ch == c {
			return true
		}
	}
	return false
}

// With returns the union of s and c. When s already holds the maximum number of unknown
// channels, the oldest unknown one makes room for c.
func (s Set) With(c Channel) Set {
	if s.Contains(c) {
		return s
	}
	channels := s.Channels()
	if !c.Known() {
		unknown := 0
		for _, ch := range channels {
			if !ch.Known() {
				unknown++
			}
		}
		if unknown >= maxUnknownChannels {
			for i, ch := range channels {
				if !ch.Known() {
					channels = append(channels[:i], channels[i+1:]...)
					break
				}
			}
		}
	}
	return newSet(append(channels, c))
}

// Without returns s with c removed.
func (s Set) Without(c Channel) Set {
	out := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if ch != c {
			out = append(out, ch)
		}
	}
	return Set{channels: out}
}

// Equal reports whether both sets hold the same channels in the same order.
func (s Set) Equal(other Set) bool {
	if len(s.channels) != len(other.channels) {
		return false
	}
	for i := range s.channels {
		if s.channels[i] != other.channels[i] {
			return false
		}
	}
	return true
}

// String serializes the set in its stored form.
func (s Set) String() string {
	parts := make([]string, len(s.channels))
	for i, c := range s.channels {
		parts[i] = string(c)
	}
	return strings.Join(parts, Separator)
}

// Labels returns the display labels in order.
func (s Set) Labels() []string {
	out := make([]string, len(s.channels))
	for i, c := range s.channels {
		out[i] = c.Label()
	}
	return out
}

// Wants reports whether the preference string includes channel c.
func Wants(pref string, c Channel) bool {
	return Parse(pref).Contains(c.normalize())
}

// Add returns the serialized union of pref and c. The result always wants c.
// A channel that is empty, too long or holds "+" or control characters is rejected with
// ErrInvalidChannel.
func Add(pref string, c Channel) (string, error) {
	c = c.normalize()
	if !c.Known() && !validUnknown(c) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, string(c))
	}
	return Parse(pref).With(c).String(), nil
}

// Remove returns the serialized difference of pref and c.
// When nothing is left the fallback channels are used, {email} if none are given.
func Remove(pref string, c Channel, fallback ...Channel) string {
	set := Parse(pref).Without(c.normalize())
	if set.Len() > 0 {
		return set.String()
	}
	if len(fallback) == 0 {
		fallback = []Channel{Email}
	}
	set = newSet(fallback)
	if set.Len() == 0 {
		set = Set{channels: []Channel{Email}}
	}
	return set.String()
}

// FormatLabel renders the preference for display, e.g. "Correo electrónico + WhatsApp".
func FormatLabel(pref string) string {
	return strings.Join(Parse(pref).Labels(), " + ")
}
