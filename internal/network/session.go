package network

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/chat-server/internal/auth"
	"github.com/annel0/chat-server/internal/chat"
	"github.com/annel0/chat-server/internal/eventbus"
	"github.com/annel0/chat-server/internal/logging"
)

// SessionState состояние конечного автомата сессии.
type SessionState int32

const (
	StateConnected SessionState = iota
	StateAuthPending
	StateAuthenticated
	StateTerminated
)

// ClientSession обслуживает одно клиентское соединение: меню аутентификации,
// затем цикл команд. Сессия монопольно владеет своим сокетом; реестры держат
// на неё только lookup-ссылки, которые она сама снимает при завершении.
type ClientSession struct {
	id   string
	conn net.Conn
	srv  *ChatServer

	reader  *bufio.Reader
	writeMu sync.Mutex

	state       atomic.Int32
	username    string // пусто до аутентификации
	currentRoom string

	teardownOnce sync.Once
}

func newClientSession(id string, conn net.Conn, srv *ChatServer) *ClientSession {
	s := &ClientSession{
		id:     id,
		conn:   conn,
		srv:    srv,
		reader: bufio.NewReader(conn),
	}
	s.state.Store(int32(StateConnected))
	return s
}

// State возвращает текущее состояние сессии.
func (s *ClientSession) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *ClientSession) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Username реализует chat.Member.
func (s *ClientSession) Username() string {
	return s.username
}

// SendLine реализует chat.Member: пишет одну строку протокола. Запись
// ограничена write-таймаутом, чтобы медленный получатель не удерживал
// бродкаст отправителя бесконечно.
func (s *ClientSession) SendLine(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.srv.opts.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.opts.WriteTimeout))
	}
	_, err := fmt.Fprintf(s.conn, "%s\n", line)
	return err
}

// readLine блокирующе читает одну строку и санитизирует её.
func (s *ClientSession) readLine() (string, error) {
	if s.srv.opts.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.srv.opts.ReadTimeout))
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return auth.SanitizeInput(line), nil
}

// Run ведёт сессию через конечный автомат до завершения. Любая ошибка
// ввода-вывода фатальна только для этой сессии.
func (s *ClientSession) Run() {
	defer s.teardown()

	s.setState(StateAuthPending)
	if !s.authLoop() {
		return
	}
	s.commandLoop()
}

// authLoop показывает меню до успешного входа. Возвращает false, если клиент
// выбрал выход или соединение оборвалось.
func (s *ClientSession) authLoop() bool {
	for s.State() == StateAuthPending {
		if err := s.SendLine(MenuLogin + "\n" + MenuRegister + "\n" + MenuExit); err != nil {
			return false
		}

		choice, err := s.readLine()
		if err != nil {
			return false
		}

		switch choice {
		case "1":
			ok, err := s.handleLogin()
			if err != nil {
				return false
			}
			if ok {
				return true
			}
		case "2":
			if err := s.handleRegister(); err != nil {
				return false
			}
		case "3":
			return false
		default:
			if err := s.SendLine(ReplyInvalidChoice); err != nil {
				return false
			}
		}
	}
	return false
}

// handleLogin читает учётные данные и пытается аутентифицироваться.
// Возвращает (false, nil) при отказе — сессия остаётся в меню.
func (s *ClientSession) handleLogin() (bool, error) {
	if err := s.SendLine(PromptLoginUsername); err != nil {
		return false, err
	}
	username, err := s.readLine()
	if err != nil {
		return false, err
	}
	if err := s.SendLine(PromptLoginPassword); err != nil {
		return false, err
	}
	password, err := s.readLine()
	if err != nil {
		return false, err
	}

	if !s.srv.accounts.Authenticate(username, password) {
		s.srv.metrics.AuthTotal.WithLabelValues("login_failed").Inc()
		return false, s.SendLine(ReplyLoginFailed)
	}

	// Повторный вход под уже активным именем отклоняется, а не вытесняет
	// живую сессию.
	s.username = username
	if err := s.srv.directory.Register(s); err != nil {
		s.username = ""
		logging.SecurityEvent("LOGIN_REJECTED", username, "already online")
		s.srv.metrics.AuthTotal.WithLabelValues("login_failed").Inc()
		return false, s.SendLine(ReplyLoginFailed)
	}

	s.setState(StateAuthenticated)
	s.srv.metrics.AuthTotal.WithLabelValues("login_ok").Inc()
	s.srv.metrics.ActiveSessions.Inc()

	if s.srv.presence != nil {
		s.srv.presence.SetOnline(username)
	}
	_ = eventbus.Publish(context.Background(),
		eventbus.NewEnvelope(eventbus.EventUserLogin, userEvent{Username: username}))

	if err := s.SendLine(ReplyLoginOK); err != nil {
		return false, err
	}
	if err := s.SendLine(ReplyWelcome); err != nil {
		return false, err
	}

	s.joinRoom(chat.GeneralRoom, false)
	logging.Info("Сессия %s: пользователь %s вошёл", s.id, username)
	return true, nil
}

// handleRegister читает две строки (имя, пароль) и регистрирует аккаунт.
// Успех не аутентифицирует: клиент возвращается в меню.
func (s *ClientSession) handleRegister() error {
	if err := s.SendLine(PromptRegUsername); err != nil {
		return err
	}
	username, err := s.readLine()
	if err != nil {
		return err
	}
	if err := s.SendLine(PromptRegPassword); err != nil {
		return err
	}
	password, err := s.readLine()
	if err != nil {
		return err
	}

	_, regErr := s.srv.accounts.Register(username, password)
	switch regErr {
	case nil:
		s.srv.metrics.AuthTotal.WithLabelValues("register_ok").Inc()
		return s.SendLine(ReplyRegisterOK)
	case auth.ErrInvalidUsername:
		s.srv.metrics.AuthTotal.WithLabelValues("register_failed").Inc()
		return s.SendLine(ReplyBadUsername)
	case auth.ErrUserExists:
		s.srv.metrics.AuthTotal.WithLabelValues("register_failed").Inc()
		return s.SendLine(ReplyUserExists)
	case auth.ErrWeakPassword:
		s.srv.metrics.AuthTotal.WithLabelValues("register_failed").Inc()
		return s.SendLine(ReplyWeakPassword)
	default:
		logging.Error("Сессия %s: ошибка регистрации: %v", s.id, regErr)
		s.srv.metrics.AuthTotal.WithLabelValues("register_failed").Inc()
		return s.SendLine(ReplyRegisterError)
	}
}

// commandLoop читает и выполняет команды до LOGOUT или обрыва соединения.
func (s *ClientSession) commandLoop() {
	for s.State() == StateAuthenticated {
		line, err := s.readLine()
		if err != nil {
			return
		}
		if line == "" {
			continue
		}

		cmd, ok := ParseCommand(line)
		if !ok {
			continue
		}

		switch cmd.Name {
		case CmdMessage:
			s.handleMessage(cmd)
		case CmdJoin:
			s.handleJoin(cmd)
		case CmdLeave:
			s.handleLeave(cmd)
		case CmdPM:
			s.handlePM(cmd)
		case CmdLogout:
			logging.Info("Сессия %s: пользователь %s вышел командой LOGOUT", s.id, s.username)
			return
		default:
			// ProtocolError не фатальна: состояние не меняется.
			_ = s.SendLine("[SERVER] Unknown command. Commands: MESSAGE <room> <text>, JOIN <room>, LEAVE <room>, PM <user> <text>, LOGOUT")
		}
	}
}

func (s *ClientSession) handleMessage(cmd Command) {
	if len(cmd.Args) < 2 {
		_ = s.SendLine("[SERVER] Usage: MESSAGE <room> <text>")
		return
	}
	room, text := cmd.Args[0], cmd.Args[1]

	s.srv.rooms.Broadcast(room, s.username, text)
	s.srv.metrics.MessagesTotal.WithLabelValues("broadcast").Inc()
	_ = eventbus.Publish(context.Background(), eventbus.NewEnvelope(
		eventbus.EventChatMessage,
		messageEvent{Room: chat.NormalizeRoomName(room), From: s.username, Bytes: len(text)}))
}

func (s *ClientSession) handleJoin(cmd Command) {
	if len(cmd.Args) < 1 {
		_ = s.SendLine("[SERVER] Usage: JOIN <room>")
		return
	}
	room := s.joinRoom(cmd.Args[0], true)
	_ = eventbus.Publish(context.Background(), eventbus.NewEnvelope(
		eventbus.EventRoomJoined, roomEvent{Room: room, Username: s.username}))
}

func (s *ClientSession) handleLeave(cmd Command) {
	if len(cmd.Args) < 1 {
		_ = s.SendLine("[SERVER] Usage: LEAVE <room>")
		return
	}
	room := chat.NormalizeRoomName(cmd.Args[0])
	s.srv.rooms.Leave(room, s.username)
	s.srv.accounts.LeaveRoom(s.username, room)
	s.currentRoom = chat.GeneralRoom
	_ = eventbus.Publish(context.Background(), eventbus.NewEnvelope(
		eventbus.EventRoomLeft, roomEvent{Room: room, Username: s.username}))
}

func (s *ClientSession) handlePM(cmd Command) {
	if len(cmd.Args) < 2 {
		_ = s.SendLine("[SERVER] Usage: PM <user> <text>")
		return
	}
	recipient, text := cmd.Args[0], cmd.Args[1]

	target, online := s.srv.directory.Get(recipient)
	if !online {
		_ = s.SendLine(fmt.Sprintf("[SERVER] User %s is not online.", recipient))
		return
	}

	if err := target.SendLine(fmt.Sprintf("[PM] %s: %s", s.username, text)); err != nil {
		logging.Debug("Сессия %s: доставка PM к %s не удалась: %v", s.id, recipient, err)
	}
	_ = s.SendLine(fmt.Sprintf("[PM to %s]: %s", recipient, text))

	s.srv.metrics.MessagesTotal.WithLabelValues("pm").Inc()
	_ = eventbus.Publish(context.Background(), eventbus.NewEnvelope(
		eventbus.EventPrivateMsg, pmEvent{From: s.username, To: recipient, Bytes: len(text)}))
}

// joinRoom добавляет сессию в комнату и фиксирует членство на аккаунте.
func (s *ClientSession) joinRoom(name string, announce bool) string {
	room := s.srv.rooms.Join(name, s)
	s.srv.accounts.JoinRoom(s.username, room.Name())
	s.currentRoom = room.Name()
	if announce {
		_ = s.SendLine(fmt.Sprintf("[SERVER] Joined room: %s", room.Name()))
	}
	return room.Name()
}

// abort закрывает сокет сессии из чужой горутины, не трогая её состояние.
// Полный teardown выполняет владеющий воркер, когда его блокирующее чтение
// вернёт ошибку: username и членства принадлежат только ему.
func (s *ClientSession) abort() {
	_ = s.conn.Close()
}

// teardown безусловно снимает сессию со всех комнат и из каталога живых
// сессий и закрывает сокет. Идемпотентен: вызывается и по LOGOUT, и по
// ошибке ввода-вывода, и при остановке сервера.
func (s *ClientSession) teardown() {
	s.teardownOnce.Do(func() {
		s.setState(StateTerminated)

		if s.username != "" {
			s.srv.rooms.LeaveAll(s.username)
			s.srv.directory.Unregister(s)
			if s.srv.presence != nil {
				s.srv.presence.SetOffline(s.username)
			}
			_ = eventbus.Publish(context.Background(), eventbus.NewEnvelope(
				eventbus.EventUserLogout, userEvent{Username: s.username}))
			s.srv.metrics.ActiveSessions.Dec()
		}

		_ = s.conn.Close()
		logging.Debug("Сессия %s завершена", s.id)
	})
}

// Полезные нагрузки событий шины.

type userEvent struct {
	Username string `json:"username"`
}

type messageEvent struct {
	Room  string `json:"room"`
	From  string `json:"from"`
	Bytes int    `json:"bytes"`
}

type roomEvent struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

type pmEvent struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Bytes int    `json:"bytes"`
}
