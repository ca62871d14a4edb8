package handler

import (
	"net/http"

	"github.com/sakif/foodgram/internal/service"
)

// IngredientHandler serves the read-only ingredient catalog.
type IngredientHandler struct {
	ingredients *service.IngredientService
}

func NewIngredientHandler(ingredients *service.IngredientService) *IngredientHandler {
	return &IngredientHandler{ingredients: ingredients}
}

// HandleList searches the catalog by name prefix. Not paginated.
//
// HTTP: GET /api/ingredients/?name=<prefix>
func (h *IngredientHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.ingredients.Search(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingredients)
}

// HTTP: GET /api/ingredients/{id}/
func (h *IngredientHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ingredient, err := h.ingredients.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingredient)
}
