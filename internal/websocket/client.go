package websocket

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время, которое разрешено клиенту читать следующее сообщение.
	pongWait = 60 * time.Second

	// Периодичность отправки ping-сообщений клиенту.
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения
	maxMessageSize = 4096

	// Размер буфера канала отправки по умолчанию
	defaultClientBufferSize = 128
)

// Client является посредником между WebSocket-соединением и хабом
type Client struct {
	// Уникальный ID подключения (transport-layer identity)
	ConnectionID string

	hub     *Hub
	manager *Manager
	conn    *websocket.Conn

	// Буферизованный канал для исходящих сообщений
	send chan []byte

	// Флаг закрытия канала send (защита от panic при двойном закрытии)
	sendClosed atomic.Bool
}

// NewClient создает нового клиента с собственным connectionId
func NewClient(hub *Hub, manager *Manager, conn *websocket.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = defaultClientBufferSize
	}
	return &Client{
		ConnectionID: uuid.New().String(),
		hub:          hub,
		manager:      manager,
		conn:         conn,
		send:         make(chan []byte, bufferSize),
	}
}

// trySend кладет сообщение в буфер отправки без блокировки.
// Переполненный буфер означает мертвого или безнадежно медленного клиента.
func (c *Client) trySend(message []byte) bool {
	if c.sendClosed.Load() {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		log.Printf("[Client %s] Буфер отправки переполнен, сообщение отброшено", c.ConnectionID)
		return false
	}
}

// closeSend закрывает канал отправки ровно один раз
func (c *Client) closeSend() {
	if c.sendClosed.CompareAndSwap(false, true) {
		close(c.send)
	}
}

// Close принудительно закрывает соединение
func (c *Client) Close() {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	_ = c.conn.Close()
}

// ReadPump читает сообщения от клиента и передает их менеджеру.
// Завершение цикла чтения означает разрыв соединения.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Client %s] Неожиданное закрытие: %v", c.ConnectionID, err)
			}
			return
		}

		if err := c.manager.HandleMessage(message, c); err != nil {
			log.Printf("[Client %s] Фатальная ошибка обработки, закрываем соединение: %v", c.ConnectionID, err)
			return
		}
	}
}

// WritePump отправляет сообщения из буфера в соединение и шлет ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
