package handler

import (
	"errors"
	"net/http"

	"challenge-server/internal/middleware"
	"challenge-server/internal/models"
	"challenge-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// submitRequest - тело запроса на сохранение дневной записи.
type submitRequest struct {
	Entries map[string]string `json:"entries" binding:"required"`
}

// analysisRequest - тело запроса на AI-анализ журнала.
type analysisRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// JournalHandler обрабатывает HTTP запросы дневника челленджа.
type JournalHandler struct {
	journal  *service.JournalService
	verifier middleware.TokenVerifier
	logger   *zap.Logger
}

// NewJournalHandler создает новый JournalHandler.
func NewJournalHandler(journal *service.JournalService, verifier middleware.TokenVerifier, logger *zap.Logger) *JournalHandler {
	return &JournalHandler{
		journal:  journal,
		verifier: verifier,
		logger:   logger.Named("JournalHandler"),
	}
}

// RegisterRoutes регистрирует маршруты дневника.
func (h *JournalHandler) RegisterRoutes(router *gin.Engine) {
	authMiddleware := middleware.AuthMiddleware(h.verifier, h.logger)

	journalGroup := router.Group("/journal", authMiddleware)
	{
		journalGroup.POST("/entries", h.submitEntry)
		journalGroup.GET("/entries", h.listEntries)
		journalGroup.GET("/today", h.today)
		journalGroup.GET("/statuses", h.listStatuses)
		journalGroup.POST("/analysis", h.analyze)
		journalGroup.POST("/analysis/stream", h.analyzeStream)
	}
}

// submitEntry сохраняет запись за текущий день.
func (h *JournalHandler) submitEntry(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: entries object is required"})
		return
	}

	rec, err := h.journal.Submit(c.Request.Context(), ownerID, req.Entries)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// listEntries возвращает все записи пользователя по возрастанию дня.
func (h *JournalHandler) listEntries(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	records, err := h.journal.History(c.Request.Context(), ownerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// today возвращает состояние текущего дня челленджа.
func (h *JournalHandler) today(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	info, err := h.journal.Today(c.Request.Context(), ownerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// listStatuses возвращает публичные статусы всех участников.
func (h *JournalHandler) listStatuses(c *gin.Context) {
	statuses, err := h.journal.Statuses(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

// analyze запускает AI-анализ журнала пользователя.
func (h *JournalHandler) analyze(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req analysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: mode is required"})
		return
	}

	result, err := h.journal.Analyze(c.Request.Context(), ownerID, req.Mode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// analyzeStream запускает потоковый AI-анализ: фрагменты уходят
// WebSocket-подписчикам владельца по мере генерации, в HTTP ответ попадает
// финальный накопленный текст.
func (h *JournalHandler) analyzeStream(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req analysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: mode is required"})
		return
	}

	result, err := h.journal.AnalyzeStream(c.Request.Context(), ownerID, req.Mode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondError преобразует ошибку сервисного слоя в HTTP ответ.
func (h *JournalHandler) respondError(c *gin.Context, err error) {
	var compErr *service.CompletionError

	switch {
	case errors.Is(err, models.ErrUnknownArchetype),
		errors.Is(err, models.ErrEmptyEntries):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrChallengeNotActive),
		errors.Is(err, models.ErrCompletionPending):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.As(err, &compErr), errors.Is(err, service.ErrAIGenerationFailed):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("Unhandled service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}
