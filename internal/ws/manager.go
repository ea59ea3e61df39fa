package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client представляет собой одно WebSocket соединение с идентификатором пользователя.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	send   chan []byte // Канал для отправки сообщений этому клиенту
}

// ConnectionManager управляет активными WebSocket соединениями.
type ConnectionManager struct {
	clients    map[string]*Client // Карта userID -> Client
	register   chan *Client       // Канал для регистрации нового клиента
	unregister chan string        // Канал для удаления клиента (по userID)
	mu         sync.RWMutex       // Мьютекс для защиты доступа к clients
	logger     zerolog.Logger
}

// NewConnectionManager создает и запускает новый менеджер соединений.
func NewConnectionManager(logger zerolog.Logger) *ConnectionManager {
	m := &ConnectionManager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan string),
		logger:     logger.With().Str("component", "ConnectionManager").Logger(),
	}
	go m.run() // Запускаем цикл управления в отдельной горутине
	return m
}

// run запускает основной цикл менеджера для обработки регистрации/дерегистрации.
func (m *ConnectionManager) run() {
	m.logger.Info().Msg("ConnectionManager started")
	for {
		select {
		case client := <-m.register:
			m.logger.Info().Str("userID", client.UserID).Msg("Registering client")
			m.mu.Lock()
			// Если клиент с таким UserID уже есть, закрываем старое соединение
			if oldClient, ok := m.clients[client.UserID]; ok {
				m.logger.Info().Str("userID", client.UserID).Msg("Closing previous connection")
				close(oldClient.send)
				_ = oldClient.Conn.Close()
			}
			m.clients[client.UserID] = client
			m.mu.Unlock()

		case userID := <-m.unregister:
			m.mu.Lock()
			if client, ok := m.clients[userID]; ok {
				m.logger.Info().Str("userID", userID).Msg("Unregistering client")
				delete(m.clients, userID)
				close(client.send)
				// Соединение закрывается в readPump клиента
			}
			m.mu.Unlock()
		}
	}
}

// RegisterClient регистрирует нового клиента.
func (m *ConnectionManager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient удаляет клиента.
func (m *ConnectionManager) UnregisterClient(userID string) {
	m.unregister <- userID
}

// SendToUser отправляет сообщение конкретному пользователю.
// Возвращает true, если пользователь онлайн и сообщение поставлено в очередь.
func (m *ConnectionManager) SendToUser(userID string, message []byte) bool {
	// RLock держится на время отправки: close(client.send) выполняется
	// только под полной блокировкой, иначе возможна паника при отправке
	// в уже закрытый канал. Отправка неблокирующая, RLock не зависает.
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[userID]
	if !ok {
		m.logger.Debug().Str("userID", userID).Msg("User is offline")
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		// Канал переполнен (клиент не успевает читать)
		m.logger.Warn().Str("userID", userID).Msg("Send queue full, message dropped")
		return false
	}
}
