package network

import (
	"strings"
	"unicode"
)

// Литералы протокола. Клиенты разбирают эти строки дословно, менять их
// нельзя без смены версии протокола.
const (
	MenuLogin    = "1. Login"
	MenuRegister = "2. Register"
	MenuExit     = "3. Exit"

	ReplyLoginOK         = "Login successful!"
	ReplyLoginFailed     = "Login failed."
	ReplyRegisterOK      = "Registration successful!"
	ReplyInvalidChoice   = "Invalid choice."
	ReplyWelcome         = "Welcome to the chat server!"
	ReplyBadUsername     = "Registration failed: Invalid username"
	ReplyUserExists      = "Registration failed: Username already exists"
	ReplyWeakPassword    = "Registration failed: Password does not meet complexity requirements."
	ReplyRegisterError   = "Registration failed: Internal error"
	PromptLoginUsername  = "Enter username:"
	PromptLoginPassword  = "Enter password:"
	PromptRegUsername    = "Enter username (min 3 characters):"
	PromptRegPassword    = "Enter password (min 12 chars, mix of upper/lower/number/special chars):"
)

// Команды аутентифицированной фазы.
const (
	CmdMessage = "MESSAGE"
	CmdJoin    = "JOIN"
	CmdLeave   = "LEAVE"
	CmdPM      = "PM"
	CmdLogout  = "LOGOUT"
)

// Command разобранная клиентская команда: слово команды и до двух полей,
// последнее поле может содержать пробелы.
type Command struct {
	Name string   // верхний регистр
	Args []string // 0..2 аргументов
}

// ParseCommand разбивает строку максимум на три токена по пробельным
// символам; хвост третьего токена сохраняет внутренние пробелы.
func ParseCommand(line string) (Command, bool) {
	tokens := tokenize(line, 3)
	if len(tokens) == 0 {
		return Command{}, false
	}
	return Command{
		Name: strings.ToUpper(tokens[0]),
		Args: tokens[1:],
	}, true
}

func tokenize(line string, max int) []string {
	var tokens []string
	rest := strings.TrimSpace(line)
	for len(tokens) < max-1 {
		idx := strings.IndexFunc(rest, unicode.IsSpace)
		if idx < 0 {
			break
		}
		tokens = append(tokens, rest[:idx])
		rest = strings.TrimLeftFunc(rest[idx:], unicode.IsSpace)
	}
	if rest != "" {
		tokens = append(tokens, rest)
	}
	return tokens
}
