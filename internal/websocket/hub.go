package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// DeliveryFilter решает, доставлять ли событие конкретному подключению.
// Реализуется реестром сессий: таблица подписок контекста - единственный
// авторитет исходящей доставки.
type DeliveryFilter interface {
	CanReceive(connectionID, event string) bool
	AllowCountdown(connectionID string, window time.Duration) bool
}

// Hub владеет подключенными клиентами и реализует три примитива отправки:
// адресную (мимо подписок), широковещательную (через фильтр) и
// широковещательную с троттлингом. Отправка отключенному подключению
// молча отбрасывается.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	filter DeliveryFilter

	// onClose вызывается после удаления клиента из таблицы (каскад очистки)
	onClose func(connectionID string)

	// Глобальный троттлинг по имени события
	throttleMu     sync.Mutex
	lastBroadcast  map[string]time.Time
}

// NewHub создает новый хаб
func NewHub() *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		lastBroadcast: make(map[string]time.Time),
	}
}

// SetFilter устанавливает фильтр доставки (реестр сессий)
func (h *Hub) SetFilter(filter DeliveryFilter) {
	h.filter = filter
}

// SetCloseHandler устанавливает колбэк каскадной очистки при закрытии
func (h *Hub) SetCloseHandler(fn func(connectionID string)) {
	h.onClose = fn
}

// RegisterClient добавляет клиента в таблицу
func (h *Hub) RegisterClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ConnectionID] = client
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[Hub] Клиент %s зарегистрирован (всего: %d)", client.ConnectionID, total)
}

// UnregisterClient удаляет клиента и запускает каскад очистки
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.ConnectionID]
	if ok && current == client {
		delete(h.clients, client.ConnectionID)
	}
	h.mu.Unlock()

	if ok && current == client {
		client.closeSend()
		if h.onClose != nil {
			h.onClose(client.ConnectionID)
		}
	}
}

// marshalEvent сериализует конверт события
func marshalEvent(event string, data interface{}) ([]byte, bool) {
	raw, err := json.Marshal(Event{Type: event, Data: data})
	if err != nil {
		log.Printf("[Hub] Ошибка сериализации события %s: %v", event, err)
		return nil, false
	}
	return raw, true
}

// EmitTo отправляет событие одному подключению, минуя таблицу подписок.
// Возвращает false, если подключение не найдено или буфер переполнен.
func (h *Hub) EmitTo(connectionID, event string, data interface{}) bool {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	raw, ok := marshalEvent(event, data)
	if !ok {
		return false
	}
	return client.trySend(raw)
}

// Broadcast отправляет событие всем подключениям, разрешенным фильтром
func (h *Hub) Broadcast(event string, data interface{}) {
	h.BroadcastIf(event, data, nil)
}

// BroadcastIf отправляет событие подключениям, прошедшим фильтр подписок
// и дополнительный предикат (nil = без ограничения)
func (h *Hub) BroadcastIf(event string, data interface{}, predicate func(connectionID string) bool) {
	raw, ok := marshalEvent(event, data)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for cid, client := range h.clients {
		if h.filter != nil && !h.filter.CanReceive(cid, event) {
			continue
		}
		if predicate != nil && !predicate(cid) {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.trySend(raw)
	}
}

// BroadcastThrottled отправляет событие с глобальным и per-client троттлингом.
// Используется для eventCountdown: частота к любому клиенту не превышает 2 Гц.
func (h *Hub) BroadcastThrottled(event string, data interface{}, perClientWindow time.Duration) {
	h.throttleMu.Lock()
	if time.Since(h.lastBroadcast[event]) < perClientWindow {
		h.throttleMu.Unlock()
		return
	}
	h.lastBroadcast[event] = time.Now()
	h.throttleMu.Unlock()

	raw, ok := marshalEvent(event, data)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for cid, client := range h.clients {
		if h.filter != nil && !h.filter.CanReceive(cid, event) {
			continue
		}
		if h.filter != nil && !h.filter.AllowCountdown(cid, perClientWindow) {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.trySend(raw)
	}
}

// CloseConnection закрывает подключение по id (вытеснение, force logout)
func (h *Hub) CloseConnection(connectionID string) {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if ok {
		client.Close()
	}
}

// IsConnected проверяет наличие подключения
func (h *Hub) IsConnected(connectionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[connectionID]
	return ok
}

// Count возвращает число подключенных клиентов
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
