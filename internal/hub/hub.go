// Package hub реализует рассылку снапшотов журнала по WebSocket.
package hub

import (
	"encoding/json"
	"sync"

	"challenge-server/internal/models"

	"go.uber.org/zap"
)

// Типы сообщений, отправляемых подписчикам. Каждое сообщение - полный
// снапшот, заменяющий предыдущее состояние на клиенте целиком.
const (
	MessageTypeRecords       = "records_snapshot"
	MessageTypeStatuses      = "statuses_snapshot"
	MessageTypeAnalysisChunk = "analysis_chunk"
)

// Envelope - обертка исходящего сообщения.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AnalysisChunkPayload - один фрагмент потокового AI-анализа.
// Done=true помечает финальное сообщение, текст в нем пуст.
type AnalysisChunkPayload struct {
	Mode string `json:"mode"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Hub управляет активными WebSocket подписчиками и рассылает им снапшоты.
// Приватные записи уходят только подписчикам того же владельца, публичные
// статусы - всем.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub создает и запускает новый Hub.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.Named("Hub"),
	}
	go h.run()
	return h
}

// run обрабатывает регистрацию и дерегистрацию подписчиков.
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("Подписчик зарегистрирован", zap.String("ownerID", client.OwnerID))

		case client := <-h.unregister:
			h.removeClient(client)

		case <-h.done:
			return
		}
	}
}

// Stop останавливает цикл управления и отключает всех подписчиков.
// После остановки Register/Unregister возвращаются без эффекта.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.logger.Info("Hub остановлен")
	})
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.logger.Info("Подписчик отключен", zap.String("ownerID", client.OwnerID))
}

// Register регистрирует нового подписчика.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister удаляет подписчика.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// NotifyOwnerRecords отправляет снапшот приватных записей всем соединениям
// данного владельца.
func (h *Hub) NotifyOwnerRecords(ownerID string, records []*models.ChallengeRecord) {
	message, err := marshalEnvelope(MessageTypeRecords, records)
	if err != nil {
		h.logger.Error("Ошибка сериализации снапшота записей", zap.Error(err))
		return
	}
	h.send(message, func(c *Client) bool { return c.OwnerID == ownerID })
}

// NotifyPublicStatuses отправляет снапшот публичных статусов всем подписчикам.
func (h *Hub) NotifyPublicStatuses(statuses []*models.PublicStatus) {
	message, err := marshalEnvelope(MessageTypeStatuses, statuses)
	if err != nil {
		h.logger.Error("Ошибка сериализации снапшота статусов", zap.Error(err))
		return
	}
	h.send(message, func(c *Client) bool { return true })
}

// NotifyAnalysisChunk отправляет фрагмент потокового анализа соединениям
// владельца. Фрагменты приватны, как и сами записи.
func (h *Hub) NotifyAnalysisChunk(ownerID, mode, text string, done bool) {
	message, err := marshalEnvelope(MessageTypeAnalysisChunk, AnalysisChunkPayload{
		Mode: mode,
		Text: text,
		Done: done,
	})
	if err != nil {
		h.logger.Error("Ошибка сериализации фрагмента анализа", zap.Error(err))
		return
	}
	h.send(message, func(c *Client) bool { return c.OwnerID == ownerID })
}

// SendInitialSnapshots отправляет свежеподключенному клиенту его текущее
// состояние, не дожидаясь первого изменения данных.
func (h *Hub) SendInitialSnapshots(client *Client, records []*models.ChallengeRecord, statuses []*models.PublicStatus) {
	if message, err := marshalEnvelope(MessageTypeRecords, records); err == nil {
		h.trySend(client, message)
	}
	if message, err := marshalEnvelope(MessageTypeStatuses, statuses); err == nil {
		h.trySend(client, message)
	}
}

// send рассылает сообщение подписчикам, прошедшим фильтр.
// Медленный подписчик (полная очередь) отключается, чтобы не блокировать
// остальных: при переподключении он получит свежий снапшот.
func (h *Hub) send(message []byte, filter func(*Client) bool) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.clients {
		if !filter(client) {
			continue
		}
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Очередь подписчика переполнена, отключаем",
			zap.String("ownerID", client.OwnerID))
		h.removeClient(client)
	}
}

func (h *Hub) trySend(client *Client, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- message:
	default:
		h.logger.Warn("Не удалось отправить начальный снапшот",
			zap.String("ownerID", client.OwnerID))
	}
}

func marshalEnvelope(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: data})
}
