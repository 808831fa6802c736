package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Сообщения для клиента по доменным ошибкам валидации.
var validationMessages = map[error]string{
	domain.ErrItemsRequired:         "Items are required",
	domain.ErrShippingRequired:      "Shipping info is required",
	domain.ErrShippingIncomplete:    "Shipping info is incomplete",
	domain.ErrPaymentMethodInvalid:  "Invalid payment method",
	domain.ErrOrderStatusInvalid:    "Invalid status value",
	domain.ErrItemProductRequired:   "Item product id is required",
	domain.ErrItemQtyInvalid:        "Item quantity must be at least 1",
	domain.ErrUserRequired:          "User id is required",
	domain.ErrReviewRatingInvalid:   "Rating must be 1-5",
	domain.ErrReviewCommentTooShort: "Comment must be at least 10 characters",
}

// classify переводит ошибку сервиса в HTTP статус и сообщение.
// internal=true означает непредвиденную ошибку: клиент получает fallback.
func classify(err error, fallback string) (status int, message string, internal bool) {
	var insufficient *domain.InsufficientStockError
	var missingProduct *domain.ProductNotFoundError

	switch {
	case errors.As(err, &insufficient):
		return http.StatusBadRequest, insufficient.Error(), false
	case errors.As(err, &missingProduct):
		return http.StatusBadRequest, missingProduct.Error(), false
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found", false
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "Product not found", false
	case errors.Is(err, domain.ErrOrderTransitionNotAllowed):
		return http.StatusConflict, err.Error(), false
	case errors.Is(err, domain.ErrProductAlreadyExists):
		return http.StatusConflict, "Product already exists", false
	case domain.IsValidation(err):
		for target, msg := range validationMessages {
			if errors.Is(err, target) {
				return http.StatusBadRequest, msg, false
			}
		}
		return http.StatusBadRequest, err.Error(), false
	default:
		return http.StatusInternalServerError, fallback, true
	}
}

// errorBody логирует ошибку и собирает тело ответа. details раскрываются,
// только если это разрешено конфигурацией.
func (h *Handler) errorBody(c *gin.Context, err error, fallback string) (int, errorResponse) {
	status, message, internal := classify(err, fallback)

	resp := errorResponse{Error: message}
	entry := h.logger.WithError(err).WithFields(log.Fields{
		"path":   c.FullPath(),
		"status": status,
	})
	if internal {
		entry.Error(fallback)
		if h.exposeDetails {
			resp.Details = err.Error()
		}
	} else {
		entry.Debug("request rejected")
	}
	return status, resp
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	status, resp := h.errorBody(c, err, fallback)
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message})
}
