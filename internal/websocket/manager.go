package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// HandlerFunc - обработчик входящего сообщения одного типа
type HandlerFunc func(data json.RawMessage, client *Client) error

// Manager диспетчеризует входящие WebSocket-сообщения в ядро (связка C10).
// Обработчики не содержат логики: только разбор полезной нагрузки и вызов
// соответствующего компонента.
type Manager struct {
	hub      *Hub
	handlers map[string]HandlerFunc
}

// NewManager создает новый менеджер сообщений
func NewManager(hub *Hub) *Manager {
	return &Manager{
		hub:      hub,
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterHandler регистрирует обработчик для типа сообщений
func (m *Manager) RegisterHandler(messageType string, handler HandlerFunc) {
	m.handlers[messageType] = handler
	log.Printf("[WSManager] Зарегистрирован обработчик для сообщений типа: %s", messageType)
}

// HandleMessage обрабатывает входящее сообщение от клиента.
// Возвращает error, только если соединение нужно закрыть.
func (m *Manager) HandleMessage(message []byte, client *Client) error {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		log.Printf("[WSManager] Невалидный JSON от %s: %v", client.ConnectionID, err)
		m.SendError(client.ConnectionID, &WireError{
			Code:    CodeInvalidContextPayload,
			Message: "invalid JSON message format",
		})
		return err
	}

	handler, ok := m.handlers[event.Type]
	if !ok {
		log.Printf("[WSManager] Нет обработчика для типа '%s' от клиента %s", event.Type, client.ConnectionID)
		m.SendError(client.ConnectionID, &WireError{
			Code:    CodeInvalidContextPayload,
			Message: fmt.Sprintf("unknown message type: %s", event.Type),
		})
		return nil
	}

	rawData, _ := json.Marshal(event.Data)
	if err := handler(rawData, client); err != nil {
		var wireErr *WireError
		if errors.As(err, &wireErr) {
			// Ошибки валидации и авторизации доставляются отправителю,
			// соединение не закрывается
			m.SendError(client.ConnectionID, wireErr)
			return nil
		}
		log.Printf("[WSManager] Обработчик '%s' вернул ошибку для %s: %v", event.Type, client.ConnectionID, err)
		m.SendError(client.ConnectionID, &WireError{
			Code:    CodeInvalidContextPayload,
			Message: "internal error while handling message",
		})
		return nil
	}

	return nil
}

// SendError отправляет клиенту стандартизированное событие error
func (m *Manager) SendError(connectionID string, wireErr *WireError) {
	m.hub.EmitTo(connectionID, EvtError, ErrorData{
		Code:           wireErr.Code,
		Message:        wireErr.Message,
		RequiredAction: wireErr.RequiredAction,
	})
}
