package irc

import "strings"

const crlf = "\r\n"

// Parse разбирает один кадр, завершённый CRLF.
//
// Кадр читается слева направо: необязательные теги (@...), необязательный
// префикс (:...), команда с параметрами и необязательный trailing-параметр.
// Если какой-либо секции не хватает разделителя, возвращается FrameError.
func Parse(raw string) (Message, error) {
	s := scanner{raw: raw}
	msg := Message{Raw: raw}

	if s.done() {
		return Message{}, malformed(raw, "empty frame")
	}

	if s.accept('@') {
		seg, ok := s.until(" ")
		if !ok {
			return Message{}, malformed(raw, "end of tags section is missing")
		}
		msg.Tags, msg.BareTags = parseTags(seg)
	}

	if s.accept(':') {
		seg, ok := s.until(" ")
		if !ok {
			return Message{}, malformed(raw, "end of prefix section is missing")
		}
		msg.Nickname, msg.Username, msg.Server = splitPrefix(seg)
	}

	rest := s.rest()
	colon := strings.IndexByte(rest, ':')
	end := strings.Index(rest, crlf)
	if colon == -1 && end == -1 {
		return Message{}, malformed(raw, "end of message not found")
	}

	trailing := colon != -1 && (end == -1 || colon < end)
	cmdEnd := end
	if trailing {
		cmdEnd = colon
	}

	command := strings.TrimSuffix(rest[:cmdEnd], " ")
	msg.Command = splitCommand(command)
	if len(msg.Command) == 0 {
		return Message{}, malformed(raw, "command is missing")
	}

	if trailing {
		params := rest[colon+1:]
		stop := strings.Index(params, crlf)
		if stop == -1 {
			return Message{}, malformed(raw, "end of message not found")
		}
		msg.Trailing = params[:stop]
		msg.HasTrailing = true
	}

	return msg, nil
}

// scanner — явный курсор по байтам кадра.
type scanner struct {
	raw string
	pos int
}

func (s *scanner) done() bool { return s.pos >= len(s.raw) }

func (s *scanner) accept(c byte) bool {
	if s.pos < len(s.raw) && s.raw[s.pos] == c {
		s.pos++
		return true
	}
	return false
}

// until возвращает всё до sep и сдвигает курсор за него.
func (s *scanner) until(sep string) (string, bool) {
	if s.done() {
		return "", false
	}
	idx := strings.Index(s.raw[s.pos:], sep)
	if idx == -1 {
		return "", false
	}
	seg := s.raw[s.pos : s.pos+idx]
	s.pos += idx + len(sep)
	return seg, true
}

func (s *scanner) rest() string {
	if s.done() {
		return ""
	}
	return s.raw[s.pos:]
}

func splitPrefix(prefix string) (nickname, username, server string) {
	userStart := strings.IndexByte(prefix, '!')
	hostStart := strings.IndexByte(prefix, '@')

	switch {
	case userStart == -1 && hostStart == -1:
		return "", "", prefix
	case userStart == -1:
		return prefix[:hostStart], "", prefix[hostStart+1:]
	case hostStart == -1 || hostStart < userStart:
		return prefix[:userStart], prefix[userStart+1:], ""
	default:
		return prefix[:userStart], prefix[userStart+1 : hostStart], prefix[hostStart+1:]
	}
}

func splitCommand(segment string) []string {
	if segment == "" {
		return nil
	}
	parts := strings.Split(segment, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
