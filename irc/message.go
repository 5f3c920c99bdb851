package irc

import "strings"

// Message — разобранный IRC-кадр.
//
// Tags равен nil, если у кадра нет секции тегов. Тег без значения (`key`)
// хранится в Tags как "" и дополнительно перечислен в BareTags, чтобы его
// можно было отличить от пустого значения (`key=`).
// Поля префикса пустые, если соответствующая часть отсутствует.
type Message struct {
	Tags        map[string]string
	BareTags    []string
	Nickname    string
	Username    string
	Server      string
	Command     []string
	Trailing    string
	HasTrailing bool
	Raw         string
}

// Tag возвращает значение тега и признак его наличия.
func (m Message) Tag(key string) (string, bool) {
	if m.Tags == nil {
		return "", false
	}
	v, ok := m.Tags[key]
	return v, ok
}

// HasTagValue сообщает, что тег присутствует и записан со знаком '='.
func (m Message) HasTagValue(key string) bool {
	if _, ok := m.Tags[key]; !ok {
		return false
	}
	for _, b := range m.BareTags {
		if b == key {
			return false
		}
	}
	return true
}

// Verb возвращает имя команды (первый токен) или "".
func (m Message) Verb() string {
	if len(m.Command) == 0 {
		return ""
	}
	return m.Command[0]
}

// Param возвращает i-й параметр после команды или "".
func (m Message) Param(i int) string {
	if i+1 >= len(m.Command) {
		return ""
	}
	return m.Command[i+1]
}

// String собирает кадр обратно без завершающего CRLF; удобно для логов.
func (m Message) String() string {
	if m.Raw != "" {
		return strings.TrimRight(m.Raw, "\r\n")
	}
	s := strings.Join(m.Command, " ")
	if m.HasTrailing {
		s += " :" + m.Trailing
	}
	return s
}
