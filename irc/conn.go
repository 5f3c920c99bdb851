package irc

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

const readChunk = 4096

// Conn превращает байтовый поток транспорта в последовательность кадров
// и копит исходящие кадры до явного SendFlush.
//
// Conn не потокобезопасен: чтение и запись ведёт одна горутина сессии.
type Conn struct {
	rw     io.ReadWriter
	recv   []byte
	send   []byte
	frames []string
	chunk  []byte
	closed bool
}

// NewConn оборачивает транспорт.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		rw:    rw,
		chunk: make([]byte, readChunk),
	}
}

// Receive читает один блок из транспорта и выделяет из накопителя все
// завершённые CRLF кадры. Пустое чтение или io.EOF помечают транспорт
// закрытым и не считаются ошибкой.
func (c *Conn) Receive() error {
	if c.closed {
		return nil
	}

	n, err := c.rw.Read(c.chunk)
	if n > 0 {
		c.recv = append(c.recv, c.chunk[:n]...)
		c.split()
	}

	switch {
	case errors.Is(err, io.EOF):
		c.closed = true
		return nil
	case err != nil:
		return err
	case n == 0:
		c.closed = true
	}
	return nil
}

func (c *Conn) split() {
	for {
		idx := bytes.Index(c.recv, []byte(crlf))
		if idx == -1 {
			break
		}
		frame := c.recv[:idx+len(crlf)]
		c.frames = append(c.frames, strings.ToValidUTF8(string(frame), "�"))
		c.recv = c.recv[idx+len(crlf):]
	}
	if len(c.recv) == 0 {
		c.recv = c.recv[:0:0]
	}
}

// Frames забирает все накопленные кадры в порядке поступления.
func (c *Conn) Frames() []string {
	out := c.frames
	c.frames = nil
	return out
}

// SendPrepare добавляет строку с CRLF в буфер отправки.
func (c *Conn) SendPrepare(text string) {
	c.send = append(c.send, text...)
	c.send = append(c.send, crlf...)
}

// SendFlush пишет буфер отправки частями, пока он не опустеет.
// Запись нуля байт означает закрытие транспорта.
func (c *Conn) SendFlush() error {
	for len(c.send) > 0 {
		if c.closed {
			return ErrTransportClosed
		}
		n, err := c.rw.Write(c.send)
		c.send = c.send[n:]
		if err != nil {
			return err
		}
		if n == 0 {
			c.closed = true
			return ErrTransportClosed
		}
	}
	c.send = c.send[:0]
	return nil
}

// Closed сообщает, что транспорт закрыт.
func (c *Conn) Closed() bool {
	return c.closed
}

// Pending возвращает число байт, ожидающих отправки.
func (c *Conn) Pending() int {
	return len(c.send)
}
