package eventbus

import "context"

// Глобальная шина процесса. Сессии чата публикуют события входа, выхода и
// сообщений, не протаскивая ссылку на шину через сетевой слой.
var globalBus EventBus

// Init задаёт глобальную шину. Вызывается один раз из main до запуска
// listener'а; повторная инициализация заменяет шину целиком.
func Init(bus EventBus) { globalBus = bus }

// Publish отправляет событие чата в глобальную шину. До Init (в частности,
// в тестах) события молча отбрасываются — публикация всегда best-effort.
func Publish(ctx context.Context, ev *Envelope) error {
	if globalBus == nil {
		return nil
	}
	return globalBus.Publish(ctx, ev)
}
