package irc

import "strings"

// parseTags возвращает значения тегов и ключи, записанные без '='.
func parseTags(segment string) (map[string]string, []string) {
	tags := make(map[string]string)
	var bare []string
	if segment == "" {
		return tags, nil
	}
	for _, tag := range strings.Split(segment, ";") {
		if tag == "" {
			continue
		}
		key, value, found := strings.Cut(tag, "=")
		if !found {
			tags[key] = ""
			bare = append(bare, key)
			continue
		}
		tags[key] = UnescapeTagValue(value)
	}
	return tags, bare
}

// UnescapeTagValue раскрывает экранирование значения тега IRCv3:
// \: -> ';', \s -> пробел, \\ -> '\', \r -> CR, \n -> LF.
//
// Разбор идёт одним проходом, поэтому уже раскрытый обратный слэш
// не участвует в следующей подстановке. Неизвестная пара \x даёт x,
// одиночный слэш в конце отбрасывается.
func UnescapeTagValue(value string) string {
	if strings.IndexByte(value, '\\') == -1 {
		return value
	}

	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(value) {
			break
		}
		i++
		switch value[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(value[i])
		}
	}
	return b.String()
}
