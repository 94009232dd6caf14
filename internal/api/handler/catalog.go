package handler

import (
	"net/http"

	"github.com/kiranshivaraju/floorcast/internal/api/response"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// CatalogLister is the read-only view of the reference catalog.
type CatalogLister interface {
	ListProducts() []models.Product
	ListSamples() []models.Sample
}

// NewListFloorsHandler returns an http.HandlerFunc for GET /api/v1/floors.
func NewListFloorsHandler(c CatalogLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.List(w, c.ListProducts())
	}
}

// NewListSamplesHandler returns an http.HandlerFunc for GET /api/v1/samples.
func NewListSamplesHandler(c CatalogLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.List(w, c.ListSamples())
	}
}
