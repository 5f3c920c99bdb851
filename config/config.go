package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"twitch-chat-bridge/logging"
)

// EnvPrefix — префикс переменных окружения, переопределяющих ключи файла.
const EnvPrefix = "CHAT_BRIDGE_"

// ErrConfig оборачивает любую ошибку загрузки или проверки конфигурации.
var ErrConfig = errors.New("config")

// Config агрегирует значения конфигурации из файла и переменных окружения.
type Config struct {
	Twitch   TwitchConfig
	HTTP     HTTPConfig
	Queue    QueueConfig
	Journal  JournalConfig
	LogLevel string `env:"log_level" envDefault:"info"`

	// Warnings перечисляет неизвестные ключи; загрузку они не прерывают.
	Warnings []string `env:"-"`
}

// TwitchConfig содержит адрес IRC-сервера, канал и учётные данные.
type TwitchConfig struct {
	Server         string   `env:"server,required,notEmpty"`
	Port           int      `env:"port,required"`
	Channel        string   `env:"channel,required,notEmpty"`
	Token          string   `env:"token,required,notEmpty"`
	ClientID       string   `env:"client_id"`
	ReconnectEvery Duration `env:"reconnect_every" envDefault:"5s"`
	HelixTimeout   Duration `env:"helix_timeout" envDefault:"10s"`
	TokenCheck     Duration `env:"token_check_every" envDefault:"1h"`
}

// HTTPConfig задаёт локальный HTTP-сервер long-poll.
type HTTPConfig struct {
	ListenPort     int      `env:"listen_port,required"`
	RequestTimeout Duration `env:"request_timeout,required"`
	StaticDir      string   `env:"static_dir" envDefault:"web"`
}

// QueueConfig задаёт срок жизни и предельное число сообщений в очереди.
type QueueConfig struct {
	MessageTimeout Duration `env:"message_timeout,required"`
	MessageLimit   int      `env:"message_limit,required"`
}

// JournalConfig задаёт подключение к Postgres и батчинг журнала сессии.
// Пустой DSN отключает журнал.
type JournalConfig struct {
	DSN           string   `env:"postgres_dsn"`
	MaxBatch      int      `env:"journal_max_batch" envDefault:"100"`
	FlushEvery    Duration `env:"journal_flush_every" envDefault:"1500ms"`
	ChanBuffer    int      `env:"journal_buffer" envDefault:"4096"`
	StatsLogEvery Duration `env:"journal_stats_every" envDefault:"5m"`
	FlushTimeout  Duration `env:"journal_flush_timeout" envDefault:"5s"`
}

// Enabled сообщает, настроен ли журнал.
func (j JournalConfig) Enabled() bool {
	return j.DSN != ""
}

var knownKeys = map[string]struct{}{
	"server": {}, "port": {}, "channel": {}, "token": {}, "client_id": {},
	"reconnect_every": {}, "helix_timeout": {}, "token_check_every": {},
	"listen_port": {}, "request_timeout": {}, "static_dir": {},
	"message_timeout": {}, "message_limit": {},
	"postgres_dsn": {}, "journal_max_batch": {}, "journal_flush_every": {},
	"journal_buffer": {}, "journal_stats_every": {}, "journal_flush_timeout": {},
	"log_level": {},
}

// Load читает файл key=value (если path не пуст), накладывает переменные
// окружения CHAT_BRIDGE_* и возвращает валидированную Config.
func Load(path string) (Config, error) {
	values := make(map[string]string)

	if strings.TrimSpace(path) != "" {
		fileValues, err := godotenv.Read(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
		}
		for k, v := range fileValues {
			values[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}

	for k, v := range env.ToMap(os.Environ()) {
		if key, ok := strings.CutPrefix(k, EnvPrefix); ok {
			values[strings.ToLower(key)] = v
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: values}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg.Twitch.Server = strings.TrimSpace(cfg.Twitch.Server)
	cfg.Twitch.Channel = normalizeChannel(cfg.Twitch.Channel)
	cfg.Twitch.Token = strings.TrimPrefix(strings.TrimSpace(cfg.Twitch.Token), "oauth:")
	cfg.Warnings = unknownKeys(values)

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Twitch.Channel == "" {
		return fmt.Errorf("требуется channel")
	}
	if c.Twitch.Token == "" {
		return fmt.Errorf("требуется token")
	}
	if c.Twitch.Port <= 0 || c.Twitch.Port > 65535 {
		return fmt.Errorf("port вне диапазона: %d", c.Twitch.Port)
	}
	if c.HTTP.ListenPort <= 0 || c.HTTP.ListenPort > 65535 {
		return fmt.Errorf("listen_port вне диапазона: %d", c.HTTP.ListenPort)
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout должен быть больше нуля")
	}
	if c.Queue.MessageTimeout <= 0 {
		return fmt.Errorf("message_timeout должен быть больше нуля")
	}
	if c.Queue.MessageLimit <= 0 {
		return fmt.Errorf("message_limit должен быть больше нуля")
	}
	if c.Twitch.ReconnectEvery <= 0 {
		return fmt.Errorf("reconnect_every должен быть больше нуля")
	}
	if c.Twitch.HelixTimeout <= 0 {
		return fmt.Errorf("helix_timeout должен быть больше нуля")
	}
	if c.Twitch.TokenCheck <= 0 {
		return fmt.Errorf("token_check_every должен быть больше нуля")
	}

	if c.Journal.Enabled() {
		if c.Journal.MaxBatch <= 0 {
			return fmt.Errorf("journal_max_batch должен быть больше нуля")
		}
		if c.Journal.FlushEvery <= 0 {
			return fmt.Errorf("journal_flush_every должен быть больше нуля")
		}
		if c.Journal.ChanBuffer <= 0 {
			return fmt.Errorf("journal_buffer должен быть больше нуля")
		}
		if c.Journal.StatsLogEvery <= 0 {
			return fmt.Errorf("journal_stats_every должен быть больше нуля")
		}
		if c.Journal.FlushTimeout <= 0 {
			return fmt.Errorf("journal_flush_timeout должен быть больше нуля")
		}
	}

	return nil
}

// Redacted возвращает копию без секретов, пригодную для логов.
func (c Config) Redacted() Config {
	out := c
	out.Twitch.Token = logging.Mask(c.Twitch.Token)
	if out.Journal.DSN != "" {
		out.Journal.DSN = "<redacted>"
	}
	return out
}

func unknownKeys(values map[string]string) []string {
	var out []string
	for k := range values {
		if _, ok := knownKeys[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}

// Duration принимает как строки time.ParseDuration ("20s"), так и целое число секунд ("20").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = 0
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", raw)
}

// Std возвращает значение как time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
