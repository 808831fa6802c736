package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/service/orders"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

// PlaceOrder — POST /orders.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	cmd := req.command(currentUser(c), strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)))
	h.withIdempotency(c, "POST /orders", cmd, func() handlerResult {
		order, err := h.orders.PlaceOrder(c.Request.Context(), cmd)
		if err != nil {
			status, body := h.errorBody(c, err, "Order creation failed")
			return handlerResult{status: status, body: body}
		}
		return handlerResult{
			status: http.StatusCreated,
			body:   orderEnvelope{Success: true, Order: newOrderResponse(order)},
		}
	})
}

// UpdateStatus — PUT /orders/:id/status, только для администраторов.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), orders.UpdateStatusCommand{
		OrderID: c.Param("id"),
		Status:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Reason:  req.Reason,
	})
	if err != nil {
		h.fail(c, err, "Failed to update order status")
		return
	}
	c.JSON(http.StatusOK, orderEnvelope{Success: true, Order: newOrderResponse(order)})
}

// GetOrder — GET /orders/:id. Покупатель видит только свои заказы.
func (h *Handler) GetOrder(c *gin.Context) {
	details, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to fetch order")
		return
	}
	// Чужой заказ неотличим от отсутствующего.
	if !isAdmin(c) && details.Order.UserID != currentUser(c) {
		h.fail(c, domain.ErrOrderNotFound, "Failed to fetch order")
		return
	}

	resp := newOrderResponse(details.Order)
	for _, event := range details.Timeline {
		resp.Timeline = append(resp.Timeline, timelineResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// ListOrders — GET /orders, все заказы для администратора.
func (h *Handler) ListOrders(c *gin.Context) {
	list, err := h.orders.ListOrders(c.Request.Context(), parseLimit(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch orders")
		return
	}
	c.JSON(http.StatusOK, newOrderListResponse(list))
}

// MyOrders — GET /users/me/orders.
func (h *Handler) MyOrders(c *gin.Context) {
	list, err := h.orders.ListUserOrders(c.Request.Context(), currentUser(c), parseLimit(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch orders")
		return
	}
	c.JSON(http.StatusOK, newOrderListResponse(list))
}

// Revenue — GET /orders/revenue: выручка по дням в валюте.
func (h *Handler) Revenue(c *gin.Context) {
	days, err := h.orders.DailyRevenue(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to fetch revenue")
		return
	}

	resp := revenueResponse{
		Labels: make([]string, 0, len(days)),
		Data:   make([]float64, 0, len(days)),
	}
	for _, day := range days {
		resp.Labels = append(resp.Labels, day.Day)
		resp.Data = append(resp.Data, fromMinor(day.TotalMinor))
	}
	c.JSON(http.StatusOK, resp)
}

// CheckStock — POST /products/check-stock, рекомендательная проверка корзины.
func (h *Handler) CheckStock(c *gin.Context) {
	var req stockCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	report, err := h.orders.CheckStock(c.Request.Context(), req.requests())
	if err != nil {
		h.fail(c, err, "Failed to check stock")
		return
	}
	c.JSON(http.StatusOK, stockCheckResponse{
		Success:         true,
		InStock:         report.InStock,
		Results:         newStockResults(report.Results),
		OutOfStockItems: newStockResults(report.OutOfStock),
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrOrderNotFound)
}
