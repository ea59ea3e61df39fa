package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время, разрешенное для чтения следующего pong сообщения от клиента.
	pongWait = 60 * time.Second
	// Отправлять пинги клиенту с этим периодом. Должно быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Максимальный размер сообщения, разрешенный от клиента.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin проверяется CORS-слоем перед апгрейдом.
		return true
	},
}

// Handler обрабатывает запросы на установку WebSocket соединения.
type Handler struct {
	manager   *ConnectionManager
	jwtSecret []byte
	sessions  interfaces.SessionRepository
	logger    zerolog.Logger
}

// NewHandler создает новый обработчик WebSocket.
func NewHandler(manager *ConnectionManager, jwtSecret []byte, sessions interfaces.SessionRepository, logger zerolog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		jwtSecret: jwtSecret,
		sessions:  sessions,
		logger:    logger.With().Str("component", "WebSocketHandler").Logger(),
	}
}

// ServeWS обрабатывает входящий HTTP запрос для WebSocket.
// Токен передается query-параметром, потому что браузерный WebSocket
// API не позволяет выставить заголовок Authorization.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		h.logger.Warn().Msg("Missing 'token' query parameter")
		http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.validateToken(tokenString)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Invalid token")
		http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
		return
	}

	active, err := h.sessions.IsSessionActive(r.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("userID", claims.UserID.String()).Msg("Session lookup failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !active {
		h.logger.Warn().Str("userID", claims.UserID.String()).Msg("Session revoked or expired")
		http.Error(w, "Unauthorized: Session is not active", http.StatusUnauthorized)
		return
	}

	userID := claims.UserID.String()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Не пишем ошибку в http.ResponseWriter, так как upgrader уже это сделал
		h.logger.Error().Err(err).Str("userID", userID).Msg("Failed to upgrade connection")
		return
	}

	h.logger.Info().Str("userID", userID).Msg("WebSocket connection established")

	client := &Client{
		UserID: userID,
		Conn:   conn,
		send:   make(chan []byte, 256), // Буферизованный канал для отправки
	}

	h.manager.RegisterClient(client)

	go client.writePump(h.logger.With().Str("userID", userID).Logger())
	go client.readPump(h.manager, h.logger.With().Str("userID", userID).Logger())
}

// validateToken проверяет JWT токен и возвращает claims.
func (h *Handler) validateToken(tokenString string) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token parse error: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}

// readPump откачивает сообщения от WebSocket соединения.
// Клиент ничего не должен присылать, но чтение нужно для обработки
// pong и закрытия соединения.
func (c *Client) readPump(manager *ConnectionManager, logger zerolog.Logger) {
	defer func() {
		manager.UnregisterClient(c.UserID)
		_ = c.Conn.Close()
		logger.Info().Msg("readPump finished")
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket read error")
			} else {
				logger.Info().Msg("WebSocket connection closed")
			}
			break
		}
		logger.Warn().Bytes("message", message).Msg("Received unexpected message from client (ignored)")
	}
}

// writePump откачивает сообщения из канала send в WebSocket соединение.
func (c *Client) writePump(logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		logger.Info().Msg("writePump finished")
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				logger.Info().Msg("Send channel closed, sending CloseMessage")
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Error().Err(err).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}
