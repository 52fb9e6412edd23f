package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/internal/pricing"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
)

func (s *Server) Quote(w http.ResponseWriter, r *http.Request) {
	var req pricing.Request
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Service.Valid() {
		respondWithJSON(w, http.StatusBadRequest, envelope{Message: "Validation failed", Errors: []string{"service is required"}})
		return
	}

	if req.Service == models.ServiceShop && s.products != nil {
		items, err := s.catalogPrices(r, req.Items)
		if err != nil {
			s.respondWithServiceError(w, err)
			return
		}
		req.Items = items
	}

	quote, err := s.calculator.Quote(req)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, quote)
}

// catalogPrices replaces client-side prices with the catalog's current ones.
func (s *Server) catalogPrices(r *http.Request, items []models.ShopItem) ([]models.ShopItem, error) {
	priced := make([]models.ShopItem, 0, len(items))
	for _, item := range items {
		product, err := s.products.GetProduct(r.Context(), item.ProductID)
		if err != nil {
			return nil, err
		}
		priced = append(priced, product.Snapshot(item.Quantity))
	}
	return priced, nil
}

type materialsResponse struct {
	Currency      string           `json:"currency"`
	MinimumOrder  decimal.Decimal  `json:"minimumOrder"`
	EngravingMode pricing.Mode     `json:"engravingMode"`
	Engraving     engravingOptions `json:"engraving"`
	Cutting       cuttingOptions   `json:"cutting"`
}

type engravingOptions struct {
	Materials []pricing.Option `json:"materials"`
	Tiers     []pricing.Option `json:"tiers"`
}

type cuttingOptions struct {
	Materials []pricing.Option `json:"materials"`
}

func (s *Server) Materials(w http.ResponseWriter, r *http.Request) {
	rules := s.calculator.Rules()
	respondWithData(w, http.StatusOK, materialsResponse{
		Currency:      rules.Currency,
		MinimumOrder:  rules.MinimumOrder,
		EngravingMode: s.calculator.EngravingMode(),
		Engraving: engravingOptions{
			Materials: rules.EngravingMaterials(),
			Tiers:     rules.EngravingTiers(),
		},
		Cutting: cuttingOptions{Materials: rules.CuttingMaterials()},
	})
}

func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	if s.products == nil {
		respondWithData(w, http.StatusOK, []models.Product{})
		return
	}
	filter := orders.ProductFilter{
		Category:     r.URL.Query().Get("category"),
		FeaturedOnly: r.URL.Query().Get("featured") == "true",
	}
	products, err := s.products.ListProducts(r.Context(), filter)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	respondWithData(w, http.StatusOK, products)
}

func (s *Server) GetProduct(w http.ResponseWriter, r *http.Request) {
	if s.products == nil {
		respondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	product, err := s.products.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, product)
}

type productInput struct {
	Name          string           `json:"name" validate:"required,max=255"`
	Description   string           `json:"description"`
	Category      string           `json:"category" validate:"required,max=64"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discountPrice"`
	Stock         int              `json:"stock" validate:"gte=0"`
	IsActive      *bool            `json:"isActive"`
	IsFeatured    bool             `json:"isFeatured"`
	IsPopular     bool             `json:"isPopular"`
}

func (s *Server) decodeProduct(r *http.Request) (models.Product, error) {
	var in productInput
	if err := decodeJSON(r, &in); err != nil {
		return models.Product{}, &orders.ValidationError{Problems: []string{"invalid request body"}}
	}

	var problems []string
	if err := s.validate.Struct(in); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return models.Product{}, err
		}
		for _, fe := range fieldErrors {
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	if !in.Price.IsPositive() {
		problems = append(problems, "price must be positive")
	}
	if in.DiscountPrice != nil && in.DiscountPrice.IsNegative() {
		problems = append(problems, "discountPrice must not be negative")
	}
	if len(problems) > 0 {
		return models.Product{}, &orders.ValidationError{Problems: problems}
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	now := time.Now().UTC()
	return models.Product{
		Name:          in.Name,
		Description:   in.Description,
		Category:      in.Category,
		Price:         in.Price.Round(2),
		DiscountPrice: in.DiscountPrice,
		Stock:         in.Stock,
		IsActive:      active,
		IsFeatured:    in.IsFeatured,
		IsPopular:     in.IsPopular,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *Server) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.decodeProduct(r)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	product.ID = uuid.New().String()
	if err := s.products.CreateProduct(r.Context(), &product); err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.logger.WithField("product_id", product.ID).Info("Product created")
	respondWithData(w, http.StatusCreated, product)
}

func (s *Server) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.decodeProduct(r)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	product.ID = mux.Vars(r)["id"]
	if err := s.products.UpdateProduct(r.Context(), &product); err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, product)
}

func (s *Server) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.products.DeactivateProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.logger.WithField("product_id", product.ID).Info("Product deactivated")
	respondWithJSON(w, http.StatusOK, envelope{Success: true, Message: "Product removed", Data: product})
}

func (s *Server) AdminSetStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stock *int `json:"stock"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Stock == nil {
		respondWithError(w, http.StatusBadRequest, "stock is required")
		return
	}
	if *req.Stock < 0 {
		s.respondWithServiceError(w, &orders.ValidationError{Problems: []string{"stock must not be negative"}})
		return
	}
	product, err := s.products.SetStock(r.Context(), mux.Vars(r)["id"], *req.Stock)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, product)
}
