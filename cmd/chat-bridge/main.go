package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"twitch-chat-bridge/config"
	"twitch-chat-bridge/helix"
	"twitch-chat-bridge/twitch"
)

var rootCmd = &cobra.Command{
	Use:           "chat-bridge",
	Short:         "Мост чата Twitch для браузера через long-poll",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringP("config", "c", "server.config", "файл конфигурации key=value")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chat-bridge: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode переводит ошибку запуска в код выхода процесса.
func exitCode(err error) int {
	var statusErr *helix.StatusError
	switch {
	case errors.Is(err, config.ErrConfig):
		return 2
	case errors.Is(err, helix.ErrUnauthorized),
		errors.Is(err, helix.ErrMissingScope),
		errors.Is(err, twitch.ErrAuthRejected):
		return 3
	case errors.As(err, &statusErr), errors.Is(err, helix.ErrNotFound):
		return 4
	default:
		return 1
	}
}
