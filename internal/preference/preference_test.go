package preference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		pref string
		want []Channel
	}{
		{name: "single known", pref: "email", want: []Channel{Email}},
		{name: "canonical order", pref: "whatsapp+email", want: []Channel{Email, WhatsApp}},
		{name: "whitespace and case", pref: " Telegram + EMAIL ", want: []Channel{Email, Telegram}},
		{name: "alias ambos", pref: "ambos", want: []Channel{Email, Telegram}},
		{name: "alias todos", pref: "todos", want: []Channel{Email, Telegram, WhatsApp}},
		{name: "alias all mixed", pref: "all+whatsapp", want: []Channel{Email, Telegram, WhatsApp}},
		{name: "duplicates", pref: "email+email+telegram+email", want: []Channel{Email, Telegram}},
		{name: "empty falls back to email", pref: "", want: []Channel{Email}},
		{name: "only separators", pref: "+ + +", want: []Channel{Email}},
		{name: "unknown preserved", pref: "sms", want: []Channel{Channel("sms")}},
		{name: "unknown after known", pref: "sms+whatsapp+push", want: []Channel{WhatsApp, Channel("sms"), Channel("push")}},
		{name: "fully unknown kept verbatim", pref: "Señal Push", want: []Channel{Channel("señal push")}},
		{name: "control characters dropped", pref: "email+sms\x00", want: []Channel{Email}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.pref)
			assert.Equal(t, tt.want, got.Channels())
		})
	}
}

func TestParse_UnknownBounded(t *testing.T) {
	var parts []string
	for i := 0; i < 20; i++ {
		parts = append(parts, "canal"+string(rune('a'+i)))
	}
	parts = append(parts, strings.Repeat("x", maxTokenLength+1))

	set := Parse(strings.Join(parts, "+"))

	assert.Equal(t, maxUnknownChannels, set.Len())
	assert.Equal(t, Channel("canala"), set.Channels()[0])
}

func TestParse_NeverEmpty(t *testing.T) {
	inputs := []string{"", "   ", "+", "email", "todos", "sms", "ñandú", "EMAIL+whatsapp"}
	for _, in := range inputs {
		assert.Positive(t, Parse(in).Len(), "input %q", in)
	}
}

func TestSet_StringRoundTrip(t *testing.T) {
	inputs := []string{"email", "telegram+email", "ambos", "todos", "sms+email", "whatsapp+push+sms", "", "Señal Push"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first := Parse(in)
			second := Parse(first.String())
			assert.True(t, first.Equal(second), "%q -> %q", first.String(), second.String())
		})
	}
}

func TestWants(t *testing.T) {
	assert.True(t, Wants("email+whatsapp", WhatsApp))
	assert.False(t, Wants("email+whatsapp", Telegram))
	assert.True(t, Wants("ambos", Telegram))
	assert.False(t, Wants("ambos", WhatsApp))
	assert.True(t, Wants("", Email))
	assert.True(t, Wants("sms", Channel("sms")))
	assert.True(t, Wants("email+sms", Channel(" SMS ")))
}

func TestAdd(t *testing.T) {
	tests := []struct {
		pref string
		ch   Channel
		want string
	}{
		{pref: "email", ch: Telegram, want: "email+telegram"},
		{pref: "email", ch: WhatsApp, want: "email+whatsapp"},
		{pref: "whatsapp", ch: Email, want: "email+whatsapp"},
		{pref: "ambos", ch: WhatsApp, want: "email+telegram+whatsapp"},
		{pref: "email+telegram", ch: Telegram, want: "email+telegram"},
		{pref: "sms", ch: Telegram, want: "telegram+sms"},
		{pref: "email", ch: Channel(" SMS "), want: "email+sms"},
		{pref: "email", ch: Channel("Señal Push"), want: "email+señal push"},
	}

	for _, tt := range tests {
		t.Run(tt.pref+"+"+string(tt.ch), func(t *testing.T) {
			got, err := Add(tt.pref, tt.ch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, Wants(got, tt.ch))
		})
	}
}

func TestAdd_ThenWants(t *testing.T) {
	var full []string
	for i := 0; i < maxUnknownChannels; i++ {
		full = append(full, "canal"+string(rune('a'+i)))
	}

	prefs := []string{"", "email", "todos", "sms+push", strings.Join(full, "+"), "email+" + strings.Join(full, "+")}
	channels := []Channel{Email, Telegram, WhatsApp, "sms", "SMS", "canalz", "canala", "mensaje_texto", "señal push"}

	for _, pref := range prefs {
		for _, ch := range channels {
			got, err := Add(pref, ch)
			require.NoError(t, err, "Add(%q, %q)", pref, ch)
			assert.True(t, Wants(got, ch), "Add(%q, %q) = %q", pref, ch, got)
			assert.True(t, Parse(got).Equal(Parse(Parse(got).String())), "Add(%q, %q) = %q", pref, ch, got)
		}
	}
}

func TestAdd_FullUnknownsEvictsOldest(t *testing.T) {
	var parts []string
	for i := 0; i < maxUnknownChannels; i++ {
		parts = append(parts, "canal"+string(rune('a'+i)))
	}

	got, err := Add(strings.Join(parts, "+"), "canalz")
	require.NoError(t, err)

	set := Parse(got)
	assert.Equal(t, maxUnknownChannels, set.Len())
	assert.False(t, set.Contains("canala"))
	assert.Equal(t, Channel("canalb"), set.Channels()[0])
	assert.Equal(t, Channel("canalz"), set.Channels()[maxUnknownChannels-1])
}

func TestAdd_InvalidChannel(t *testing.T) {
	for _, ch := range []Channel{"", "   ", "sms+push", Channel(strings.Repeat("x", maxTokenLength+1)), "sms\x07"} {
		_, err := Add("email", ch)
		assert.ErrorIs(t, err, ErrInvalidChannel, "channel %q", ch)
	}
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name     string
		pref     string
		ch       Channel
		fallback []Channel
		want     string
	}{
		{name: "keeps others", pref: "email+whatsapp", ch: Email, fallback: []Channel{Email}, want: "whatsapp"},
		{name: "last channel uses default fallback", pref: "telegram", ch: Telegram, want: "email"},
		{name: "last channel uses given fallback", pref: "whatsapp", ch: WhatsApp, fallback: []Channel{Telegram}, want: "telegram"},
		{name: "alias expanded before removal", pref: "todos", ch: Telegram, want: "email+whatsapp"},
		{name: "absent channel", pref: "email", ch: WhatsApp, want: "email"},
		{name: "unknown preserved", pref: "telegram+sms", ch: Telegram, want: "sms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remove(tt.pref, tt.ch, tt.fallback...)
			assert.Equal(t, tt.want, got)
			assert.Positive(t, Parse(got).Len())
		})
	}
}

func TestRemove_NotWantedUnlessFallback(t *testing.T) {
	for _, pref := range []string{"email", "telegram", "todos", "email+whatsapp", "sms"} {
		for _, ch := range KnownChannels() {
			got := Remove(pref, ch)
			if ch == Email {
				continue
			}
			assert.False(t, Wants(got, ch), "Remove(%q, %s) = %q", pref, ch, got)
		}
	}
}

func TestFormatLabel(t *testing.T) {
	tests := []struct {
		pref string
		want string
	}{
		{pref: "email", want: "Correo electrónico"},
		{pref: "whatsapp+telegram", want: "Telegram + WhatsApp"},
		{pref: "todos", want: "Correo electrónico + Telegram + WhatsApp"},
		{pref: "email+mensaje_texto", want: "Correo electrónico + Mensaje Texto"},
		{pref: "Señal Push", want: "Señal Push"},
		{pref: "", want: "Correo electrónico"},
	}

	for _, tt := range tests {
		t.Run(tt.pref, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatLabel(tt.pref))
		})
	}
}

func TestChannel_Known(t *testing.T) {
	assert.True(t, Email.Known())
	assert.True(t, Telegram.Known())
	assert.True(t, WhatsApp.Known())
	assert.False(t, Channel("sms").Known())

	ch, ok := ParseChannel(" WhatsApp ")
	assert.True(t, ok)
	assert.Equal(t, WhatsApp, ch)

	_, ok = ParseChannel("fax")
	assert.False(t, ok)
}

func TestNewSet_MayBeEmpty(t *testing.T) {
	assert.Equal(t, 0, NewSet().Len())
	assert.Equal(t, "email+telegram", NewSet(Telegram, Email, Telegram).String())
}
