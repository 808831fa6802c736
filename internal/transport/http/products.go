package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sahaalaf/sashop/internal/domain"
)

func (h *Handler) ListProducts(c *gin.Context) {
	list, err := h.catalog.ListProducts(c.Request.Context(), parseLimit(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch products")
		return
	}

	resp := make([]productResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, newProductResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		if isNotFound(err) {
			c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "Product not found"})
			return
		}
		h.fail(c, err, "Failed to fetch product")
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

// CreateProduct — POST /products. Остаток задаётся только при создании.
func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req.product())
	if err != nil {
		h.fail(c, err, "Failed to create product")
		return
	}
	c.JSON(http.StatusCreated, newProductResponse(product))
}

// UpdateProduct — PUT /products/:id.
func (h *Handler) UpdateProduct(c *gin.Context) {
	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), req.product(c.Param("id")))
	if err != nil {
		h.failProduct(c, err, "Failed to update product")
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

// ArchiveProduct — DELETE /products/:id. Товар снимается с продажи, строка остаётся.
func (h *Handler) ArchiveProduct(c *gin.Context) {
	if err := h.catalog.ArchiveProduct(c.Request.Context(), c.Param("id")); err != nil {
		h.failProduct(c, err, "Failed to delete product")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Product deleted"})
}

func (h *Handler) ListReviews(c *gin.Context) {
	reviews, err := h.catalog.ListReviews(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failProduct(c, err, "Failed to fetch reviews")
		return
	}

	resp := make([]reviewResponse, 0, len(reviews))
	for _, r := range reviews {
		resp = append(resp, newReviewResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AddReview(c *gin.Context) {
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	review, err := h.catalog.AddReview(c.Request.Context(), domain.Review{
		ProductID: c.Param("id"),
		UserID:    currentUser(c),
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		h.failProduct(c, err, "Failed to submit review")
		return
	}
	c.JSON(http.StatusCreated, newReviewResponse(review))
}

// failProduct отвечает 404 для отсутствующего товара из пути запроса.
func (h *Handler) failProduct(c *gin.Context, err error, fallback string) {
	if isNotFound(err) {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "Product not found"})
		return
	}
	h.fail(c, err, fallback)
}
