package twitch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
)

// Dial открывает TLS-соединение с IRC-сервером Twitch.
func Dial(ctx context.Context, server string, port int) (net.Conn, error) {
	d := tls.Dialer{Config: &tls.Config{ServerName: server, MinVersion: tls.VersionTLS12}}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(server, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("twitch: dial %s:%d: %w", server, port, err)
	}
	return conn, nil
}
