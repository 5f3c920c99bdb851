package twitch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"twitch-chat-bridge/irc"
	"twitch-chat-bridge/model"
)

const (
	colorAttempts = 64
	fallbackColor = "#FF7F50"
)

// colorCache выдаёт стабильный цвет для пользователей без тега color.
type colorCache struct {
	intn   func(n int) int
	byUser map[string]string
}

func newColorCache(intn func(n int) int) *colorCache {
	return &colorCache{intn: intn, byUser: make(map[string]string)}
}

func (c *colorCache) colorFor(user string) string {
	if color, ok := c.byUser[user]; ok {
		return color
	}
	color := generateColor(c.intn)
	c.byUser[user] = color
	return color
}

// generateColor подбирает достаточно яркий цвет: 1.33r + 2g + b >= 255.
// Случайный тройной выбор проходит порог с вероятностью около 0.94,
// так что 64 попытки исчерпываются практически никогда.
func generateColor(intn func(n int) int) string {
	for range colorAttempts {
		r, g, b := intn(256), intn(256), intn(256)
		if 1.33*float64(r)+2*float64(g)+float64(b) >= 255 {
			return fmt.Sprintf("#%02X%02X%02X", r, g, b)
		}
	}
	return fallbackColor
}

// toChatMessage обогащает PRIVMSG: цвет, отображаемое имя, ответ и значки.
func (s *Session) toChatMessage(msg irc.Message) model.ChatMessage {
	user := msg.Username
	if user == "" {
		user = msg.Nickname
	}

	out := model.ChatMessage{
		User:    user,
		Message: msg.Trailing,
		Badges:  []model.Badge{},
	}

	if name, _ := msg.Tag("display-name"); name != "" {
		out.User = name
	}

	if color, _ := msg.Tag("color"); color != "" {
		out.UserColor = color
	} else {
		out.UserColor = s.colors.colorFor(user)
	}

	if reply := replyParent(msg); reply != nil {
		out.Reply = reply
		out.Message = stripMention(out.Message)
	}

	if raw, _ := msg.Tag("badges"); raw != "" {
		out.Badges = s.resolveBadges(raw)
	}

	return out
}

func replyParent(msg irc.Message) *model.Reply {
	author, _ := msg.Tag("reply-parent-display-name")
	if author == "" {
		author, _ = msg.Tag("reply-parent-user-login")
	}
	body, hasBody := msg.Tag("reply-parent-msg-body")
	if author == "" && !hasBody {
		return nil
	}
	return &model.Reply{User: author, Message: body}
}

func stripMention(text string) string {
	if !strings.HasPrefix(text, "@") {
		return text
	}
	if _, rest, ok := strings.Cut(text, " "); ok {
		return rest
	}
	return text
}

func (s *Session) resolveBadges(raw string) []model.Badge {
	out := make([]model.Badge, 0, strings.Count(raw, ",")+1)
	for _, pair := range strings.Split(raw, ",") {
		setID, version, ok := strings.Cut(pair, "/")
		if !ok || setID == "" {
			s.log.Debugf("некорректный значок %q", pair)
			continue
		}
		b, ok := s.badges.Lookup(setID, version)
		if !ok {
			s.log.Debugf("значок %s/%s не найден в каталоге", setID, version)
			continue
		}
		out = append(out, b)
	}
	return out
}

func (s *Session) toNotice(msg irc.Message) model.Notice {
	id, _ := msg.Tag("msg-id")
	return model.Notice{
		Channel:  normalizeChannel(msg.Param(0)),
		ID:       id,
		Message:  msg.Trailing,
		Tags:     msg.Tags,
		NoticeAt: s.noticeTimestamp(msg),
	}
}

func (s *Session) noticeTimestamp(msg irc.Message) time.Time {
	if ts, _ := msg.Tag("tmi-sent-ts"); ts != "" {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	return s.now().UTC()
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}
