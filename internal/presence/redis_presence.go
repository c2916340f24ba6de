package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/chat-server/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisPresence зеркалирует множество онлайн-пользователей в Redis для
// внешних инструментов (дашборды, модерация). Зеркало строго best-effort:
// чат никогда не читает его на горячем пути, а ошибки Redis не влияют на
// работу сессий.
//
// Каждый пользователь хранится отдельным ключом chat:online:<username> с
// TTL, который периодически продлевается, пока сессия жива. Упавший сервер
// таким образом не оставляет «вечно онлайн» призраков.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
	cancel context.CancelFunc
}

// Config настройки подключения presence-зеркала.
type Config struct {
	Addr string        // например, localhost:6379
	TTL  time.Duration // срок жизни ключа; по умолчанию 60s
}

// NewRedisPresence подключается к Redis и возвращает зеркало.
func NewRedisPresence(cfg Config) (*RedisPresence, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPresence{client: client, ttl: cfg.TTL}, nil
}

func key(username string) string {
	return "chat:online:" + username
}

// SetOnline помечает пользователя как онлайн.
func (p *RedisPresence) SetOnline(username string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Set(ctx, key(username), time.Now().UTC().Format(time.RFC3339), p.ttl).Err(); err != nil {
		logging.Warn("Presence: не удалось отметить %s online: %v", username, err)
	}
}

// SetOffline снимает отметку онлайн.
func (p *RedisPresence) SetOffline(username string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Del(ctx, key(username)).Err(); err != nil {
		logging.Warn("Presence: не удалось отметить %s offline: %v", username, err)
	}
}

// StartRefresh запускает периодическое продление TTL для списка онлайн
// пользователей, получаемого через snapshot. Останавливается через Close.
func (p *RedisPresence) StartRefresh(snapshot func() []string) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	interval := p.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, username := range snapshot() {
					p.SetOnline(username)
				}
			}
		}
	}()
}

// OnlineUsers возвращает список пользователей, отмеченных онлайн в Redis.
func (p *RedisPresence) OnlineUsers() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	keys, err := p.client.Keys(ctx, "chat:online:*").Result()
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, k[len("chat:online:"):])
	}
	return users, nil
}

// Close останавливает продление TTL и закрывает подключение.
func (p *RedisPresence) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.client.Close()
}
