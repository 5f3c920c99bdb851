package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"twitch-chat-bridge/irc"
)

func init() {
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Разобрать IRC-кадры из stdin и напечатать их как JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runParse(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

type parsedFrame struct {
	Tags     map[string]*string `json:"tags,omitempty"`
	Nickname string             `json:"nickname,omitempty"`
	Username string             `json:"username,omitempty"`
	Server   string             `json:"server,omitempty"`
	Command  []string           `json:"command"`
	Trailing *string            `json:"trailing,omitempty"`
}

// runParse печатает по одной JSON-строке на кадр; некорректные кадры
// сообщаются в errOut и не прерывают разбор.
func runParse(in io.Reader, out, errOut io.Writer) error {
	enc := json.NewEncoder(out)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimRight(sc.Text(), "\r")
		if raw == "" {
			continue
		}

		msg, err := irc.Parse(raw + "\r\n")
		if err != nil {
			fmt.Fprintf(errOut, "строка %d: %v\n", line, err)
			continue
		}

		frame := parsedFrame{
			Tags:     frameTags(msg),
			Nickname: msg.Nickname,
			Username: msg.Username,
			Server:   msg.Server,
			Command:  msg.Command,
		}
		if msg.HasTrailing {
			trailing := msg.Trailing
			frame.Trailing = &trailing
		}
		if err := enc.Encode(frame); err != nil {
			return fmt.Errorf("parse: write: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("parse: read: %w", err)
	}
	return nil
}

// frameTags печатает тег без значения как null, а пустое значение как "".
func frameTags(msg irc.Message) map[string]*string {
	if msg.Tags == nil {
		return nil
	}
	out := make(map[string]*string, len(msg.Tags))
	for key, value := range msg.Tags {
		if !msg.HasTagValue(key) {
			out[key] = nil
			continue
		}
		v := value
		out[key] = &v
	}
	return out
}
