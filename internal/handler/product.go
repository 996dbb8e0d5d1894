package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vendora/commerce-core/internal/domain/catalog"
)

type variantResponse struct {
	SKU   string  `json:"sku"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

type productResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Category       string            `json:"category"`
	SKU            string            `json:"sku,omitempty"`
	Image          string            `json:"image,omitempty"`
	Price          float64           `json:"price"`
	ShippingCharge float64           `json:"shippingCharge"`
	InStock        bool              `json:"inStock"`
	Variants       []variantResponse `json:"variants,omitempty"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = h.toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductResponse(*p))
}

func (h *Handler) toProductResponse(p catalog.Product) productResponse {
	resp := productResponse{
		ID:             p.ID,
		Name:           p.Name,
		Category:       p.Category,
		SKU:            p.SKU,
		Image:          h.imageURL(p.Image),
		Price:          p.Price.InexactFloat64(),
		ShippingCharge: p.ShippingCharge.InexactFloat64(),
		InStock:        p.Stock > 0,
	}
	for _, v := range p.Variants {
		resp.Variants = append(resp.Variants, variantResponse{
			SKU:   v.SKU,
			Price: v.Price.InexactFloat64(),
			Stock: v.Stock,
		})
	}
	return resp
}

// imageURL prefixes relative image paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.cfg.ImageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
