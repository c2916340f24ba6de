package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/chat-server/internal/api"
	"github.com/annel0/chat-server/internal/auth"
	"github.com/annel0/chat-server/internal/chat"
	"github.com/annel0/chat-server/internal/config"
	"github.com/annel0/chat-server/internal/eventbus"
	"github.com/annel0/chat-server/internal/logging"
	"github.com/annel0/chat-server/internal/network"
	"github.com/annel0/chat-server/internal/presence"
)

func main() {
	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("💬 Запуск Secure Chat Server...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load("")
	if err != nil {
		logging.Error("Ошибка чтения конфигурации: %v", err)
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	chatAddr := fmt.Sprintf(":%d", cfg.Chat.GetChatPort())
	logging.Info("📡 Конфигурация: чат=%s, пул воркеров=%d, бэкенд=%s",
		chatAddr, cfg.Chat.GetMaxClients(), storageBackend(cfg))

	// === ХРАНИЛИЩЕ АККАУНТОВ ===
	repo, err := buildRepository(cfg)
	if err != nil {
		logging.Error("Ошибка инициализации хранилища: %v", err)
		log.Fatalf("❌ Ошибка инициализации хранилища: %v", err)
	}
	defer repo.Close()

	accounts := auth.NewAccountStore(repo, auth.StorePolicy{
		MaxLoginAttempts: cfg.Auth.GetMaxLoginAttempts(),
		LockoutDuration:  time.Duration(cfg.Auth.GetLockoutMinutes()) * time.Minute,
		Iterations:       cfg.Auth.GetPBKDF2Iterations(),
	})

	// === РЕЕСТРЫ ===
	directory := chat.NewDirectory()
	rooms := chat.NewRoomRegistry(directory)

	// === ШИНА СОБЫТИЙ ===
	bus := eventbus.NewMemoryBus(1024)
	eventbus.Init(bus)
	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Не удалось запустить LoggingListener: %v", err)
	}
	if cfg.EventBus.URL != "" {
		js, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream)
		if err != nil {
			logging.Warn("NATS недоступен, события остаются локальными: %v", err)
		} else {
			defer js.Close()
			if err := eventbus.MirrorTo(bus, js); err != nil {
				logging.Warn("Не удалось включить зеркало событий в NATS: %v", err)
			} else {
				logging.Info("📨 События чата зеркалируются в NATS (%s)", cfg.EventBus.URL)
			}
		}
	}

	// === PRESENCE-ЗЕРКАЛО ===
	var presenceMirror network.PresenceMirror
	if cfg.Presence.RedisAddr != "" {
		rp, err := presence.NewRedisPresence(presence.Config{
			Addr: cfg.Presence.RedisAddr,
			TTL:  time.Duration(cfg.Presence.TTLSeconds) * time.Second,
		})
		if err != nil {
			logging.Warn("Redis недоступен, presence-зеркало выключено: %v", err)
		} else {
			defer rp.Close()
			rp.StartRefresh(directory.Usernames)
			presenceMirror = rp
			logging.Info("🟢 Presence-зеркало включено (%s)", cfg.Presence.RedisAddr)
		}
	}

	// === ЧАТ-СЕРВЕР ===
	metrics := network.NewMetrics(prometheus.DefaultRegisterer, func() float64 {
		return float64(rooms.Count())
	})

	server, err := network.NewChatServer(chatAddr, network.Deps{
		Accounts:  accounts,
		Rooms:     rooms,
		Directory: directory,
		Presence:  presenceMirror,
		Metrics:   metrics,
	}, network.Options{
		MaxClients:   cfg.Chat.GetMaxClients(),
		ReadTimeout:  time.Duration(cfg.Chat.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Chat.WriteTimeoutSeconds) * time.Second,
		DrainTimeout: time.Duration(cfg.Chat.DrainTimeoutSeconds) * time.Second,
	})
	if err != nil {
		logging.Error("Ошибка запуска чат-сервера: %v", err)
		log.Fatalf("❌ Ошибка запуска чат-сервера: %v", err)
	}
	server.Start()

	// === REST API ===
	var rest *api.RestServer
	if cfg.Rest.Enabled {
		// Сетевые репозитории (MariaDB) умеют Ping — health-check будет
		// проверять и хранилище
		var storagePing api.Pinger
		if p, ok := repo.(api.Pinger); ok {
			storagePing = p
		}
		rest = api.NewRestServer(api.Config{
			Port:      fmt.Sprintf(":%d", cfg.Rest.GetRestPort()),
			Accounts:  accounts,
			Rooms:     rooms,
			Directory: directory,
			Storage:   storagePing,
		})
		rest.Start()
	}

	logging.Info("✅ Сервер готов принимать соединения на %s", chatAddr)

	// Ждем сигнала для завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	if rest != nil {
		if err := rest.Stop(); err != nil {
			logging.Warn("Ошибка остановки REST API: %v", err)
		}
	}
	server.Stop()

	logging.Info("👋 Сервер остановлен")
}

func storageBackend(cfg *config.Config) string {
	if cfg.Storage.Backend == "" {
		return "memory"
	}
	return cfg.Storage.Backend
}

// buildRepository выбирает бэкенд хранения аккаунтов по конфигурации.
func buildRepository(cfg *config.Config) (auth.UserRepository, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return auth.NewMemoryUserRepo(), nil
	case "file":
		return auth.NewFileUserRepo(cfg.Storage.File.Path)
	case "maria":
		return auth.NewMariaUserRepo(auth.MariaConfig{
			Host:     cfg.Storage.Maria.Host,
			Port:     cfg.Storage.Maria.Port,
			Database: cfg.Storage.Maria.Database,
			Username: cfg.Storage.Maria.Username,
			Password: cfg.Storage.Maria.Password,
		})
	case "mongo":
		return auth.NewMongoUserRepo(auth.MongoConfig{
			URI:        cfg.Storage.Mongo.URI,
			Database:   cfg.Storage.Mongo.Database,
			Collection: cfg.Storage.Mongo.Collection,
		})
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранения: %q", cfg.Storage.Backend)
	}
}
