package network

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит метрики чат-сервера для Prometheus.
type Metrics struct {
	ConnectionsTotal  prometheus.Counter
	ActiveConnections prometheus.Gauge
	ActiveSessions    prometheus.Gauge
	MessagesTotal     *prometheus.CounterVec
	AuthTotal         *prometheus.CounterVec
	Rooms             prometheus.GaugeFunc
}

// NewMetrics создаёт и регистрирует метрики в переданном реестре.
// roomCount снимает текущее число комнат (GaugeFunc, без фонового опроса).
func NewMetrics(reg prometheus.Registerer, roomCount func() float64) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "connections_total",
			Help:      "Общее число принятых TCP-соединений.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "active_connections",
			Help:      "Текущее число открытых соединений.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "active_sessions",
			Help:      "Текущее число аутентифицированных сессий.",
		}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_total",
			Help:      "Число обработанных сообщений по видам.",
		}, []string{"kind"}), // broadcast | pm | command
		AuthTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "auth_total",
			Help:      "Результаты попыток аутентификации и регистрации.",
		}, []string{"result"}), // login_ok | login_failed | register_ok | register_failed
		Rooms: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "rooms",
			Help:      "Число существующих комнат.",
		}, roomCount),
	}

	reg.MustRegister(m.ConnectionsTotal, m.ActiveConnections, m.ActiveSessions,
		m.MessagesTotal, m.AuthTotal, m.Rooms)
	return m
}
