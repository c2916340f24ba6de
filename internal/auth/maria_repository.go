package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MariaConfig содержит настройки подключения к MariaDB
type MariaConfig struct {
	Host     string // например, localhost
	Port     int    // например, 3306
	Database string // например, chatserver
	Username string // пользователь БД
	Password string // пароль БД
}

// MariaUserRepo реализует UserRepository для MariaDB
type MariaUserRepo struct {
	db *sql.DB
}

// NewMariaUserRepo создает новое подключение к MariaDB и возвращает репозиторий
func NewMariaUserRepo(cfg MariaConfig) (*MariaUserRepo, error) {
	// Устанавливаем значения по умолчанию
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	if cfg.Database == "" {
		cfg.Database = "chatserver"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть подключение к MariaDB: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	repo := &MariaUserRepo{db: db}

	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}

	return repo, nil
}

// createTables создает таблицу учётных записей, если её нет
func (m *MariaUserRepo) createTables() error {
	createAccountsTable := `
	CREATE TABLE IF NOT EXISTS accounts (
		username VARCHAR(64) NOT NULL PRIMARY KEY,
		password_hash VARCHAR(64) NOT NULL,
		salt VARBINARY(32) NOT NULL,
		failed_attempts INT NOT NULL DEFAULT 0,
		lockout_until TIMESTAMP NULL DEFAULT NULL,
		joined_rooms TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_login TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`

	if _, err := m.db.Exec(createAccountsTable); err != nil {
		return fmt.Errorf("не удалось создать таблицу accounts: %w", err)
	}
	return nil
}

// LoadAll загружает все учётные записи из БД
func (m *MariaUserRepo) LoadAll() ([]*Account, error) {
	rows, err := m.db.Query(`
		SELECT username, password_hash, salt, failed_attempts, lockout_until,
		       joined_rooms, created_at, last_login
		FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var (
			acc         Account
			lockout     sql.NullTime
			joinedRooms string
		)
		if err := rows.Scan(&acc.Username, &acc.PasswordHash, &acc.Salt,
			&acc.FailedAttempts, &lockout, &joinedRooms,
			&acc.CreatedAt, &acc.LastLogin); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки accounts: %w", err)
		}
		if lockout.Valid {
			acc.LockoutUntil = lockout.Time
		}

		var rooms []string
		if joinedRooms != "" {
			if err := json.Unmarshal([]byte(joinedRooms), &rooms); err != nil {
				return nil, fmt.Errorf("ошибка декодирования joined_rooms для %s: %w", acc.Username, err)
			}
		}
		acc.JoinedRooms = make(map[string]struct{}, len(rooms))
		for _, room := range rooms {
			acc.JoinedRooms[room] = struct{}{}
		}

		accounts = append(accounts, &acc)
	}
	return accounts, rows.Err()
}

// Save вставляет или обновляет учётную запись по username
func (m *MariaUserRepo) Save(account *Account) error {
	rooms := account.Rooms()
	sort.Strings(rooms)
	joinedRooms, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("ошибка кодирования joined_rooms: %w", err)
	}

	var lockout interface{}
	if !account.LockoutUntil.IsZero() {
		lockout = account.LockoutUntil.UTC().Format("2006-01-02 15:04:05")
	}

	_, err = m.db.Exec(`
		INSERT INTO accounts
			(username, password_hash, salt, failed_attempts, lockout_until,
			 joined_rooms, created_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			password_hash = VALUES(password_hash),
			salt = VALUES(salt),
			failed_attempts = VALUES(failed_attempts),
			lockout_until = VALUES(lockout_until),
			joined_rooms = VALUES(joined_rooms),
			last_login = VALUES(last_login)`,
		account.Username, account.PasswordHash, account.Salt,
		account.FailedAttempts, lockout, string(joinedRooms),
		account.CreatedAt, account.LastLogin)
	if err != nil {
		return fmt.Errorf("ошибка сохранения аккаунта %s: %w", account.Username, err)
	}
	return nil
}

// Close закрывает подключение к БД
func (m *MariaUserRepo) Close() error {
	return m.db.Close()
}

// Ping проверяет доступность БД (используется health-check'ом REST API)
func (m *MariaUserRepo) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.db.PingContext(ctx)
}
