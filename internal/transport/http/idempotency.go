package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
)

const (
	// HeaderIdempotencyKey — необязательный ключ повторной отправки POST /orders.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется, когда ответ взят из сохранённой записи.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	jsonContentType = "application/json; charset=utf-8"

	idempotencyStoreTimeout = 5 * time.Second
)

// handlerResult — ответ, который можно сохранить и отдать повторно.
type handlerResult struct {
	status int
	body   any
}

// requestHash связывает ключ с пользователем, маршрутом и нормализованным телом запроса.
func requestHash(route, userID string, body any) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	sum := sha256.New()
	sum.Write([]byte(route))
	sum.Write([]byte{0})
	sum.Write([]byte(userID))
	sum.Write([]byte{0})
	sum.Write(data)
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// withIdempotency выполняет run не больше одного раза на ключ.
// Без ключа или без хранилища run выполняется как обычно.
func (h *Handler) withIdempotency(c *gin.Context, route string, body any, run func() handlerResult) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key == "" || h.idempotency == nil {
		h.writeResult(c, run())
		return
	}

	logger := h.logger.WithFields(log.Fields{"idempotency_key": key, "route": route})
	ctx := c.Request.Context()

	hash, err := requestHash(route, currentUser(c), body)
	if err != nil {
		logger.WithError(err).Warn("failed to hash request for idempotency")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "Failed to initialize idempotent request"})
		return
	}

	record, err := h.idempotency.CreateProcessing(ctx, key, hash, h.now().Add(h.idempotencyTTL))
	if err != nil {
		h.replay(c, logger, err, record)
		return
	}

	result := run()
	payload, err := json.Marshal(result.body)
	if err != nil {
		logger.WithError(err).Error("failed to encode response")
		result = handlerResult{status: http.StatusInternalServerError, body: errorResponse{Error: "Failed to encode response"}}
		payload, _ = json.Marshal(result.body)
	}

	h.storeResult(ctx, logger, key, result.status, payload)
	c.Data(result.status, jsonContentType, payload)
}

// storeResult фиксирует исход запроса под ключом. Ответы 5xx не сохраняются:
// ключ освобождается, и повтор с тем же ключом снова доходит до сервиса.
// Запись выполняется и после отмены запроса клиентом.
func (h *Handler) storeResult(ctx context.Context, logger *log.Entry, key string, status int, payload []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyStoreTimeout)
	defer cancel()

	var err error
	switch {
	case status >= http.StatusInternalServerError:
		err = h.idempotency.Release(ctx, key)
	case status >= http.StatusBadRequest:
		err = h.idempotency.MarkFailed(ctx, key, payload, status)
	default:
		err = h.idempotency.MarkDone(ctx, key, payload, status)
	}
	if err != nil {
		logger.WithError(err).WithField("status", status).Warn("failed to store idempotent response")
	}
}

func (h *Handler) replay(c *gin.Context, logger *log.Entry, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{
			Error: "Idempotency key is already used with a different request",
		})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if record.HTTPStatus == 0 || len(record.ResponseBody) == 0 {
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "Stored idempotent response is empty"})
				return
			}
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(record.HTTPStatus, jsonContentType, record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			c.AbortWithStatusJSON(http.StatusConflict, errorResponse{
				Error: "Request with the same idempotency key is already processing",
			})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "Unknown idempotency record status"})
		}
	case errors.Is(createErr, domain.ErrIdempotencyKeyRequired):
		badRequest(c, "Idempotency key is invalid")
	default:
		logger.WithError(createErr).Error("failed to create idempotency record")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "Failed to initialize idempotent request"})
	}
}

func (h *Handler) writeResult(c *gin.Context, result handlerResult) {
	c.JSON(result.status, result.body)
}
