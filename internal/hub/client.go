package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
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
	// Размер буфера исходящих сообщений одного подписчика.
	sendBufferSize = 16
)

// Client - одно WebSocket соединение подписчика.
type Client struct {
	OwnerID string
	Conn    *websocket.Conn
	send    chan []byte
}

// NewClient создает клиента с буферизованной очередью отправки.
func NewClient(ownerID string, conn *websocket.Conn) *Client {
	return &Client{
		OwnerID: ownerID,
		Conn:    conn,
		send:    make(chan []byte, sendBufferSize),
	}
}

// Start запускает горутины чтения и записи соединения.
func (c *Client) Start(h *Hub, logger *zap.Logger) {
	clientLogger := logger.With(zap.String("ownerID", c.OwnerID))
	go c.writePump(clientLogger)
	go c.readPump(h, clientLogger)
}

// readPump читает входящие сообщения. Подписка односторонняя: любые данные
// от клиента игнорируются, цикл нужен для обработки pong и закрытия.
func (c *Client) readPump(h *Hub, logger *zap.Logger) {
	defer func() {
		h.Unregister(c)
		_ = c.Conn.Close()
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
				logger.Warn("Ошибка чтения WebSocket", zap.Error(err))
			}
			break
		}
		logger.Debug("Неожиданное сообщение от клиента, игнорируется",
			zap.Int("size", len(message)))
	}
}

// writePump откачивает сообщения из очереди send в соединение.
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("Ошибка записи в WebSocket", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
