package handler

import (
	"net/http"

	"challenge-server/internal/hub"
	"challenge-server/internal/middleware"
	"challenge-server/internal/models"
	"challenge-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: ограничить Origin списком доменов фронтенда
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler обрабатывает запросы на установку WebSocket соединения.
type WSHandler struct {
	hub      *hub.Hub
	journal  *service.JournalService
	verifier middleware.TokenVerifier
	logger   *zap.Logger
}

// NewWSHandler создает новый обработчик WebSocket.
func NewWSHandler(h *hub.Hub, journal *service.JournalService, verifier middleware.TokenVerifier, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:      h,
		journal:  journal,
		verifier: verifier,
		logger:   logger.Named("WSHandler"),
	}
}

// RegisterRoutes регистрирует WebSocket маршрут.
func (h *WSHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", middleware.AuthMiddleware(h.verifier, h.logger), h.serveWS)
}

// serveWS апгрейдит соединение и подписывает клиента на снапшоты.
// Сразу после подключения клиент получает текущее состояние, дальше -
// полный снапшот после каждого изменения данных.
func (h *WSHandler) serveWS(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		h.logger.Error("Failed to upgrade connection", zap.String("ownerID", ownerID), zap.Error(err))
		return
	}

	h.logger.Info("WebSocket connection established", zap.String("ownerID", ownerID))

	client := hub.NewClient(ownerID, conn)
	h.hub.Register(client)
	client.Start(h.hub, h.logger)

	ctx := c.Request.Context()
	records, err := h.journal.History(ctx, ownerID)
	if err != nil {
		h.logger.Error("Failed to load initial records snapshot", zap.String("ownerID", ownerID), zap.Error(err))
		records = []*models.ChallengeRecord{}
	}
	statuses, err := h.journal.Statuses(ctx)
	if err != nil {
		h.logger.Error("Failed to load initial statuses snapshot", zap.Error(err))
		statuses = []*models.PublicStatus{}
	}
	h.hub.SendInitialSnapshots(client, records, statuses)
}
