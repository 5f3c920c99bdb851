package model

import "time"

// ChatMessage — обогащённое сообщение чата до постановки в очередь.
type ChatMessage struct {
	User      string
	UserColor string
	Message   string
	Reply     *Reply
	Badges    []Badge
}

// ChatEvent — сообщение чата, получившее номер в очереди. После добавления не меняется.
type ChatEvent struct {
	ID        uint64  `json:"mid"`
	Timestamp int64   `json:"timestamp"`
	User      string  `json:"user"`
	UserColor string  `json:"user_color"`
	Message   string  `json:"message"`
	Reply     *Reply  `json:"reply,omitempty"`
	Badges    []Badge `json:"badges"`
}

// Reply описывает сообщение, на которое отвечает автор.
type Reply struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// Badge — иконка значка в трёх масштабах.
type Badge struct {
	SetID     string `json:"set_id"`
	Version   string `json:"version"`
	Scale1URL string `json:"url_1x"`
	Scale2URL string `json:"url_2x"`
	Scale4URL string `json:"url_4x"`
}

// Notice описывает notice-событие, полученное от Twitch.
type Notice struct {
	Channel  string
	ID       string
	Message  string
	Tags     map[string]string
	NoticeAt time.Time
}

// Виды записей журнала сессии.
const (
	SessionEventState      = "state"
	SessionEventNotice     = "notice"
	SessionEventDisconnect = "disconnect"
)

// SessionEvent — запись журнала IRC-сессии: смена состояния, notice или разрыв.
type SessionEvent struct {
	Channel string
	Kind    string
	State   string
	Detail  string
	Tags    map[string]string
	At      time.Time
}
