package eventbus

import (
	"context"

	"github.com/annel0/chat-server/internal/logging"
)

// StartLoggingListener подписывается на все события чата и пишет их в
// стандартный лог. Функция неблокирующая.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s size=%dB", ev.ID, ev.EventType, len(ev.Payload))
	})
	if err != nil {
		return err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return nil
}

// MirrorTo пересылает все события шины во внешнюю шину (например, NATS).
// Ошибки публикации логируются и не влияют на работу чата.
func MirrorTo(src EventBus, dst EventBus) error {
	_, err := src.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		if err := dst.Publish(ctx, ev); err != nil {
			logging.Warn("EventBus mirror: публикация %s не удалась: %v", ev.EventType, err)
		}
	})
	return err
}
