package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/annel0/chat-server/internal/auth"
	"github.com/annel0/chat-server/internal/chat"
	"github.com/annel0/chat-server/internal/logging"
	"github.com/annel0/chat-server/internal/middleware"
)

// Pinger проверяет доступность бэкенда хранения аккаунтов. Реализуют его
// сетевые репозитории (MariaDB); для памяти и файла проверка не нужна.
type Pinger interface {
	Ping() error
}

// RestServer даёт операционный read-only взгляд на чат: health-check,
// статус и метрики Prometheus. Управления чатом здесь нет — протокол чата
// живёт исключительно на TCP-порту.
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	accounts   *auth.AccountStore
	rooms      *chat.RoomRegistry
	directory  *chat.Directory
	storage    Pinger
	metrics    *ServerMetrics
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port      string // например, ":8088"
	Accounts  *auth.AccountStore
	Rooms     *chat.RoomRegistry
	Directory *chat.Directory
	Storage   Pinger // nil — хранилище не проверяется
}

// GenericResponse стандартная обёртка ответов API.
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	promMw := middleware.NewPrometheusMiddleware("rest_api")
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:    router,
		accounts:  config.Accounts,
		rooms:     config.Rooms,
		directory: config.Directory,
		storage:   config.Storage,
		metrics:   NewServerMetrics(),
	}
	server.httpServer = &http.Server{
		Addr:    config.Port,
		Handler: router,
	}

	server.setupRoutes()
	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/status", rs.handleStatus)
		api.GET("/rooms", rs.handleRooms)
		api.GET("/online", rs.handleOnline)
	}
}

// handleHealth проверка состояния сервера и доступности хранилища
func (rs *RestServer) handleHealth(c *gin.Context) {
	if rs.storage != nil {
		if err := rs.storage.Ping(); err != nil {
			logging.Warn("Health-check: хранилище недоступно: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  "storage unreachable",
				"time":   time.Now().Unix(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleStatus возвращает сводный статус чат-сервера
func (rs *RestServer) handleStatus(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	status := map[string]interface{}{
		"name":            "Secure Chat Server",
		"status":          "running",
		"uptime":          rs.metrics.GetUptime(),
		"memory_mb":       fmt.Sprintf("%.2f", memoryMB),
		"cpu_percent":     fmt.Sprintf("%.2f", cpuPercent),
		"server_time":     time.Now().Unix(),
		"accounts":        rs.accounts.Count(),
		"online_sessions": rs.directory.Count(),
		"rooms":           rs.rooms.Count(),
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статус получен",
		Data:    status,
	})
}

// handleRooms возвращает список комнат с числом участников
func (rs *RestServer) handleRooms(c *gin.Context) {
	names := rs.rooms.RoomNames()
	sort.Strings(names)

	rooms := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		room, ok := rs.rooms.Get(name)
		if !ok {
			continue
		}
		rooms = append(rooms, map[string]interface{}{
			"name":    name,
			"members": room.Size(),
		})
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список комнат",
		Data:    rooms,
	})
}

// handleOnline возвращает имена пользователей онлайн
func (rs *RestServer) handleOnline(c *gin.Context) {
	users := rs.directory.Usernames()
	sort.Strings(users)

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Пользователи онлайн",
		Data:    users,
	})
}

// Start запускает REST сервер в отдельной горутине.
func (rs *RestServer) Start() {
	go func() {
		if err := rs.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("REST API: %v", err)
		}
	}()
	logging.Info("REST API слушает %s", rs.httpServer.Addr)
}

// Stop останавливает REST сервер с graceful shutdown.
func (rs *RestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rs.httpServer.Shutdown(ctx)
}
