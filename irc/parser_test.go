package irc

import (
	"errors"
	"testing"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivmsgWithTagsAndPrefix(t *testing.T) {
	msg, err := Parse("@badges=bits/100;color=#FF0000 :nick!user@host PRIVMSG #chan :hello\r\n")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"badges": "bits/100", "color": "#FF0000"}, msg.Tags)
	assert.Equal(t, "nick", msg.Nickname)
	assert.Equal(t, "user", msg.Username)
	assert.Equal(t, "host", msg.Server)
	assert.Equal(t, []string{"PRIVMSG", "#chan"}, msg.Command)
	assert.True(t, msg.HasTrailing)
	assert.Equal(t, "hello", msg.Trailing)
	assert.Equal(t, "PRIVMSG", msg.Verb())
	assert.Equal(t, "#chan", msg.Param(0))
	assert.Equal(t, "", msg.Param(1))
}

func TestParseWithoutTagsOrPrefix(t *testing.T) {
	msg, err := Parse("PING :tmi.twitch.tv\r\n")
	require.NoError(t, err)

	assert.Nil(t, msg.Tags)
	assert.Empty(t, msg.Nickname)
	assert.Empty(t, msg.Server)
	assert.Equal(t, []string{"PING"}, msg.Command)
	assert.Equal(t, "tmi.twitch.tv", msg.Trailing)
}

func TestParseCommandWithoutTrailing(t *testing.T) {
	msg, err := Parse(":tmi.twitch.tv 001 bot\r\n")
	require.NoError(t, err)

	assert.Equal(t, "tmi.twitch.tv", msg.Server)
	assert.Equal(t, []string{"001", "bot"}, msg.Command)
	assert.False(t, msg.HasTrailing)
	assert.Empty(t, msg.Trailing)
}

func TestParseTrailingKeepsColonsAndSpaces(t *testing.T) {
	msg, err := Parse(":tmi.twitch.tv CAP * ACK :twitch.tv/tags twitch.tv/commands: x\r\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"CAP", "*", "ACK"}, msg.Command)
	assert.Equal(t, "twitch.tv/tags twitch.tv/commands: x", msg.Trailing)
}

func TestParseEmptyTrailing(t *testing.T) {
	msg, err := Parse("PRIVMSG #chan :\r\n")
	require.NoError(t, err)

	assert.True(t, msg.HasTrailing)
	assert.Empty(t, msg.Trailing)
}

func TestParsePrefixVariants(t *testing.T) {
	cases := []struct {
		prefix             string
		nick, user, server string
	}{
		{prefix: "tmi.twitch.tv", server: "tmi.twitch.tv"},
		{prefix: "nick!user", nick: "nick", user: "user"},
		{prefix: "nick@host", nick: "nick", server: "host"},
		{prefix: "nick!user@host", nick: "nick", user: "user", server: "host"},
	}

	for _, tc := range cases {
		t.Run(tc.prefix, func(t *testing.T) {
			msg, err := Parse(":" + tc.prefix + " JOIN #chan\r\n")
			require.NoError(t, err)
			assert.Equal(t, tc.nick, msg.Nickname)
			assert.Equal(t, tc.user, msg.Username)
			assert.Equal(t, tc.server, msg.Server)
		})
	}
}

func TestParseTagWithoutValue(t *testing.T) {
	msg, err := Parse("@emote-only;slow=0 :tmi.twitch.tv ROOMSTATE #chan\r\n")
	require.NoError(t, err)

	v, ok := msg.Tag("emote-only")
	assert.True(t, ok)
	assert.Empty(t, v)

	v, ok = msg.Tag("slow")
	assert.True(t, ok)
	assert.Equal(t, "0", v)

	_, ok = msg.Tag("missing")
	assert.False(t, ok)
}

func TestUnescapeTagValue(t *testing.T) {
	cases := map[string]string{
		`a\:b\sc\\d`:    `a;b c\d`,
		`line\rbreak\n`: "line\rbreak\n",
		`\\s`:           `\s`,
		`plain`:         `plain`,
		`tail\`:         `tail`,
		`\x`:            `x`,
	}
	for in, want := range cases {
		assert.Equal(t, want, UnescapeTagValue(in), "input %q", in)
	}

	msg, err := Parse("@system-msg=a\\:b\\sc\\\\d :tmi.twitch.tv USERNOTICE #chan\r\n")
	require.NoError(t, err)
	assert.Equal(t, `a;b c\d`, msg.Tags["system-msg"])
}

func TestParseDistinguishesBareAndEmptyTags(t *testing.T) {
	msg, err := Parse("@emote-only;color=;mod=1 :tmi.twitch.tv ROOMSTATE #chan\r\n")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"emote-only": "", "color": "", "mod": "1"}, msg.Tags)
	assert.Equal(t, []string{"emote-only"}, msg.BareTags)

	assert.False(t, msg.HasTagValue("emote-only"))
	assert.True(t, msg.HasTagValue("color"))
	assert.True(t, msg.HasTagValue("mod"))
	assert.False(t, msg.HasTagValue("absent"))

	v, ok := msg.Tag("emote-only")
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestParseMalformedFrames(t *testing.T) {
	cases := map[string]string{
		"missing crlf":        "PRIVMSG #chan :hello",
		"missing crlf no arg": "PING",
		"unterminated tags":   "@badges=bits/100;color=#FF0000",
		"unterminated prefix": ":nick!user@host",
		"empty":               "",
		"only crlf":           "\r\n",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFrame), "got %v", err)

			var frameErr *FrameError
			require.True(t, errors.As(err, &frameErr))
			assert.Equal(t, raw, frameErr.Raw)
		})
	}
}

// Сверяем разбор PRIVMSG с go-twitch-irc, который использовал чат-логгер.
func TestParseAgreesWithGoTwitchIRC(t *testing.T) {
	line := "@badge-info=;badges=broadcaster/1,bits/100;color=#1E90FF;display-name=Streamer;id=abc;mod=0;user-id=42 " +
		":streamer!streamer@streamer.tmi.twitch.tv PRIVMSG #streamer :hello: world"

	ours, err := Parse(line + "\r\n")
	require.NoError(t, err)

	ref, ok := twitchirc.ParseMessage(line).(*twitchirc.PrivateMessage)
	require.True(t, ok, "go-twitch-irc did not recognise PRIVMSG")

	assert.Equal(t, ref.Message, ours.Trailing)
	assert.Equal(t, ref.User.Name, ours.Username)
	assert.Equal(t, "#"+ref.Channel, ours.Param(0))
	assert.Equal(t, ref.User.Color, ours.Tags["color"])
	assert.Equal(t, ref.User.DisplayName, ours.Tags["display-name"])
	assert.Equal(t, 100, ref.User.Badges["bits"])
	assert.Equal(t, "broadcaster/1,bits/100", ours.Tags["badges"])
}
