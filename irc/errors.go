package irc

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame возвращается парсером, если в кадре не хватает разделителя.
	ErrMalformedFrame = errors.New("irc: malformed frame")
	// ErrTransportClosed сигнализирует, что транспорт закрыт удалённой стороной.
	ErrTransportClosed = errors.New("irc: transport closed")
)

// FrameError описывает конкретную причину ошибки разбора кадра.
type FrameError struct {
	Reason string
	Raw    string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("irc: malformed frame: %s: %q", e.Reason, e.Raw)
}

// Is позволяет сравнивать FrameError с ErrMalformedFrame через errors.Is.
func (e *FrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

func malformed(raw, reason string) error {
	return &FrameError{Reason: reason, Raw: raw}
}
