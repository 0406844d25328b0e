// Command server runs the replay engine as a long-lived daemon: a single
// recorder/replayer pair bound to one recording directory, exposed over the
// HTTP control surface, with optional JetStream and OTLP wiring.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/annel0/replaycore/internal/replay/api"
	"github.com/annel0/replaycore/internal/replay/bridge"
	"github.com/annel0/replaycore/internal/replay/codec"
	"github.com/annel0/replaycore/internal/replay/recorder"
	"github.com/annel0/replaycore/internal/replay/replayer"
	"github.com/annel0/replaycore/internal/replay/telemetry"
	"github.com/annel0/replaycore/internal/replayconfig"
	"github.com/annel0/replaycore/internal/replaylog"
)

type jsonPayload = map[string]interface{}

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional, defaults applied otherwise)")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret for bearer tokens (empty disables auth)")
	flag.Parse()

	cfg, err := replayconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("ошибка загрузки конфигурации: %v", err)
	}

	if cfg.Recorder.LogDir != "" {
		replaylog.SetLogDir(cfg.Recorder.LogDir)
	}
	defer replaylog.CloseAll()

	logger := replaylog.GetLogger("replayd")
	logger.Info("запуск движка воспроизведения: dataDir=%s tickRate=%d segmentSize=%d",
		cfg.Recorder.DataDir, cfg.Recorder.TickRate, cfg.Recorder.SegmentSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, "replaycore")
	if err != nil {
		logger.Warn("трассировка не инициализирована, продолжаем без неё: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer shutdownTelemetry(context.Background())

	var flushBridge *bridge.Bus
	if url := cfg.Bridge.GetNATSURL(); url != "" {
		flushBridge, err = bridge.Connect(url, cfg.Bridge.Stream, 0)
		if err != nil {
			logger.Warn("мост событий NATS недоступен, продолжаем без него: %v", err)
			flushBridge = nil
		} else {
			logger.Info("мост событий NATS подключён: %s", url)
			defer flushBridge.Close()
		}
	}

	jsonCodec := codec.NewJSONCodec[jsonPayload]()

	recOpts := recorder.Options{
		TickRate:    cfg.Recorder.TickRate,
		SegmentSize: cfg.Recorder.SegmentSize,
		CodecName:   cfg.Recorder.Codec,
	}
	if flushBridge != nil {
		recOpts.OnFlush = flushBridge.OnFlush(cfg.Recorder.DataDir, time.Now)
	}

	rec, err := recorder.New[jsonPayload](cfg.Recorder.DataDir, jsonCodec, recOpts)
	if err != nil {
		logger.Error("не удалось создать рекордер: %v", err)
		log.Fatalf("рекордер: %v", err)
	}

	ply, err := replayer.New[jsonPayload](cfg.Recorder.DataDir, jsonCodec, replayer.Options[jsonPayload]{
		Speed:       cfg.Replayer.Speed,
		CacheWindow: cfg.Replayer.CacheWindow,
	})
	if err != nil {
		logger.Error("не удалось создать плеер: %v", err)
		log.Fatalf("плеер: %v", err)
	}
	// Init требует уже существующей записи; если директория пуста (первый
	// запуск до первого Start()), плеер остаётся неинициализированным до
	// конца работы процесса: повторно Init не вызывается, и вызовы
	// /api/replayer, которым нужен Init, возвращают клиенту ошибку.
	if err := ply.Init(); err != nil {
		logger.Warn("плеер не инициализирован (нет существующей записи в %s): %v", cfg.Recorder.DataDir, err)
	}

	srv := api.New[jsonPayload](api.Config[jsonPayload]{
		Port:      portString(cfg.Server.GetRESTPort()),
		JWTSecret: []byte(*jwtSecret),
		Recorder:  rec,
		Replayer:  ply,
	})

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("HTTP-поверхность управления слушает порт %d", cfg.Server.GetRESTPort())
		serverErrs <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("получен сигнал %v, завершение работы...", sig)
	case err := <-serverErrs:
		logger.Error("HTTP-сервер завершился с ошибкой: %v", err)
	}

	if rec.GetState() != recorder.Idle {
		if _, err := rec.Stop(); err != nil {
			logger.Warn("ошибка остановки рекордера при завершении: %v", err)
		}
	}
	logger.Info("движок воспроизведения остановлен")
}

func portString(port int) string {
	if port <= 0 {
		return ":8090"
	}
	return ":" + strconv.Itoa(port)
}
