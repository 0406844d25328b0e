// Package replayconfig описывает конфигурацию движка воспроизведения,
// загружаемую из YAML — по образцу internal/config в исходном игровом
// сервере (та же схема env-фоллбэков для портов управляющего REST API).
package replayconfig

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config — корневая структура конфигурации движка воспроизведения.
type Config struct {
	Recorder RecorderConfig `yaml:"recorder"`
	Replayer ReplayerConfig `yaml:"replayer"`
	Server   ServerConfig   `yaml:"server"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

// RecorderConfig управляет параметрами записи.
type RecorderConfig struct {
	DataDir     string `yaml:"data_dir"`
	TickRate    int    `yaml:"tick_rate"`
	SegmentSize int    `yaml:"segment_size"`
	Codec       string `yaml:"codec"` // "json" | "binary" | "proto"
	LogDir      string `yaml:"log_dir"`
}

// ReplayerConfig управляет параметрами воспроизведения.
type ReplayerConfig struct {
	Speed               float64 `yaml:"speed"`
	CacheWindow         int     `yaml:"cache_window"`
	IncludePartialTicks bool    `yaml:"include_partial_ticks"`
}

// ServerConfig описывает порты HTTP-поверхности управления.
type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// BridgeConfig управляет (необязательной) публикацией событий флаша
// сегментов в NATS JetStream. Мост отключён целиком, если пусты и NATSURL,
// и переменная окружения REPLAY_NATS_URL (см. GetNATSURL).
type BridgeConfig struct {
	NATSURL string `yaml:"nats_url"`
	Stream  string `yaml:"stream"`
}

// Defaults возвращает конфигурацию со значениями по умолчанию из §6
// спецификации (segmentSize=1000, tickRate=30, speed=1.0, cacheWindow=3,
// includePartialTicks=false).
func Defaults() *Config {
	return &Config{
		Recorder: RecorderConfig{
			DataDir:     "recordings",
			TickRate:    30,
			SegmentSize: 1000,
			Codec:       "json",
		},
		Replayer: ReplayerConfig{
			Speed:               1.0,
			CacheWindow:         3,
			IncludePartialTicks: false,
		},
		Server: ServerConfig{
			RESTPort:    8090,
			MetricsPort: 2113,
		},
	}
}

// GetRESTPort возвращает REST порт с поддержкой fallback значений:
// config -> env REPLAY_REST_PORT -> дефолт.
func (s *ServerConfig) GetRESTPort() int {
	return intWithEnvFallback(s.RESTPort, "REPLAY_REST_PORT", 8090)
}

// GetMetricsPort возвращает порт Prometheus-метрик с тем же приоритетом.
func (s *ServerConfig) GetMetricsPort() int {
	return intWithEnvFallback(s.MetricsPort, "REPLAY_METRICS_PORT", 2113)
}

// GetNATSURL возвращает адрес NATS с тем же приоритетом config -> env
// REPLAY_NATS_URL -> "" (пусто означает "мост отключён").
func (b *BridgeConfig) GetNATSURL() string {
	if b.NATSURL != "" {
		return b.NATSURL
	}
	return os.Getenv("REPLAY_NATS_URL")
}

func intWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	if configVal > 0 {
		return configVal
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultVal
}

// Load читает YAML-файл конфигурации и накладывает его поверх Defaults().
// Если path == "", возвращает Defaults() без ошибки.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replayconfig: чтение %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("replayconfig: разбор %s: %w", path, err)
	}

	return cfg, nil
}
