package network

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/chat-server/internal/auth"
	"github.com/annel0/chat-server/internal/chat"
	"github.com/annel0/chat-server/internal/logging"
)

// PresenceMirror зеркалирует статус онлайн во внешнее хранилище.
// Реализация опциональна (nil — зеркало выключено).
type PresenceMirror interface {
	SetOnline(username string)
	SetOffline(username string)
}

// Options параметры поведения сервера.
type Options struct {
	MaxClients   int           // размер пула воркеров
	ReadTimeout  time.Duration // 0 — блокирующее чтение без таймаута
	WriteTimeout time.Duration // ограничение на запись одному получателю
	DrainTimeout time.Duration // ожидание воркеров при остановке
}

// Deps зависимости сервера, создаются на старте и передаются явно —
// никакого глобального состояния.
type Deps struct {
	Accounts  *auth.AccountStore
	Rooms     *chat.RoomRegistry
	Directory *chat.Directory
	Presence  PresenceMirror // может быть nil
	Metrics   *Metrics
}

// ChatServer принимает TCP-соединения и раздаёт их пулу воркеров: по
// воркеру на соединение, при насыщении пула новые соединения ждут слот
// (back-pressure), а не отклоняются.
type ChatServer struct {
	listener net.Listener

	accounts  *auth.AccountStore
	rooms     *chat.RoomRegistry
	directory *chat.Directory
	presence  PresenceMirror
	metrics   *Metrics

	opts Options
	sem  chan struct{} // слоты пула воркеров

	mu       sync.Mutex
	sessions map[string]*ClientSession

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChatServer открывает listener на address и готовит сервер к запуску.
func NewChatServer(address string, deps Deps, opts Options) (*ChatServer, error) {
	if opts.MaxClients <= 0 {
		opts.MaxClients = 100
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ChatServer{
		listener:  listener,
		accounts:  deps.Accounts,
		rooms:     deps.Rooms,
		directory: deps.Directory,
		presence:  deps.Presence,
		metrics:   deps.Metrics,
		opts:      opts,
		sem:       make(chan struct{}, opts.MaxClients),
		sessions:  make(map[string]*ClientSession),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Addr возвращает фактический адрес listener'а (полезно при порте 0).
func (srv *ChatServer) Addr() net.Addr {
	return srv.listener.Addr()
}

// Start запускает цикл приёма соединений.
func (srv *ChatServer) Start() {
	srv.wg.Add(1)
	go srv.acceptLoop()
	logging.Info("Чат-сервер слушает %s (пул воркеров: %d)", srv.listener.Addr(), srv.opts.MaxClients)
}

// acceptLoop сначала занимает слот воркера и только затем принимает
// соединение: при насыщении пула входящие клиенты стоят в очереди ОС,
// сервер их не отклоняет.
func (srv *ChatServer) acceptLoop() {
	defer srv.wg.Done()

	for {
		select {
		case <-srv.ctx.Done():
			return
		case srv.sem <- struct{}{}:
		}

		conn, err := srv.listener.Accept()
		if err != nil {
			<-srv.sem
			select {
			case <-srv.ctx.Done():
				return
			default:
				logging.Warn("Ошибка принятия соединения: %v", err)
				continue
			}
		}

		srv.metrics.ConnectionsTotal.Inc()
		srv.metrics.ActiveConnections.Inc()

		session := newClientSession(uuid.NewString(), conn, srv)
		srv.mu.Lock()
		srv.sessions[session.id] = session
		srv.mu.Unlock()
		logging.Debug("Соединение %s принято с %s", session.id, conn.RemoteAddr())

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			defer func() {
				srv.mu.Lock()
				delete(srv.sessions, session.id)
				srv.mu.Unlock()
				srv.metrics.ActiveConnections.Dec()
				<-srv.sem
			}()
			session.Run()
		}()
	}
}

// Stop останавливает приём новых соединений, завершает все сессии и ждёт
// воркеров не дольше DrainTimeout, после чего сбрасывает таблицу аккаунтов.
func (srv *ChatServer) Stop() {
	srv.cancel()
	_ = srv.listener.Close()

	// Закрываем только сокеты: это будит воркера на ближайшем блокирующем
	// чтении, и полный teardown выполняет он сам. Трогать состояние сессии
	// из этой горутины нельзя — оно принадлежит владеющему воркеру.
	srv.mu.Lock()
	for _, session := range srv.sessions {
		session.abort()
	}
	srv.mu.Unlock()

	done := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logging.Info("Все сессии завершены")
	case <-time.After(srv.opts.DrainTimeout):
		logging.Warn("Не все воркеры завершились за %s, продолжаем остановку", srv.opts.DrainTimeout)
	}

	srv.accounts.Flush()
	logging.Info("Чат-сервер остановлен")
}

// SessionCount возвращает число живых соединений (для REST-статуса).
func (srv *ChatServer) SessionCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}
