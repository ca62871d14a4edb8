package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/foodgram/internal/auth"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/service"
	"github.com/sakif/foodgram/internal/storage"
)

// shoppingListFilename is the download name of the shopping list.
const shoppingListFilename = "shopping_list.txt"

// RecipeHandler serves recipes, favorites, the shopping cart and short
// links.
type RecipeHandler struct {
	recipes    *service.RecipeService
	shortLinks *service.ShortLinkService
	present    presenter
	logger     *slog.Logger
}

// NewRecipeHandler creates a RecipeHandler. baseURL is the public origin
// used for pagination links and short links.
func NewRecipeHandler(
	recipes *service.RecipeService,
	shortLinks *service.ShortLinkService,
	images storage.ImageStore,
	baseURL string,
	logger *slog.Logger,
) *RecipeHandler {
	return &RecipeHandler{
		recipes:    recipes,
		shortLinks: shortLinks,
		present:    presenter{images: images, baseURL: baseURL},
		logger:     logger,
	}
}

// viewerID is the requester's id, or 0 for anonymous requests.
func viewerID(r *http.Request) int64 {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// HandleList returns one page of recipes.
//
// HTTP: GET /api/recipes/?page=&limit=&author=&is_favorited=&is_in_shopping_cart=&name=
func (h *RecipeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := service.RecipeQuery{
		Page:      queryInt(r, "page", 1),
		Limit:     queryInt(r, "limit", service.DefaultPageSize),
		Favorited: queryFlag(r, "is_favorited"),
		InCart:    queryFlag(r, "is_in_shopping_cart"),
		Name:      r.URL.Query().Get("name"),
	}
	if author := r.URL.Query().Get("author"); author != "" {
		id, err := strconv.ParseInt(author, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusOK, newPage[recipeResponse](nil, 0, nil, nil))
			return
		}
		q.AuthorID = id
	}

	page, err := h.recipes.List(r.Context(), viewerID(r), q)
	if err != nil {
		writeError(w, err)
		return
	}

	results := make([]recipeResponse, len(page.Items))
	for i := range page.Items {
		results[i] = h.present.recipe(&page.Items[i])
	}
	next, prev := h.present.pageNumberLinks(r, q.Page, service.ClampLimit(q.Limit), page.Count)
	writeJSON(w, http.StatusOK, newPage(results, page.Count, next, prev))
}

// HandleGet returns one recipe.
//
// HTTP: GET /api/recipes/{id}/
func (h *RecipeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	recipe, err := h.recipes.Get(r.Context(), id, viewerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present.recipe(recipe))
}

// HandleCreate publishes a recipe.
//
// HTTP: POST /api/recipes/
// Body: {"name", "text", "cooking_time", "image": "data:image/png;base64,...",
// "ingredients": [{"id": 1, "amount": 10}]}
func (h *RecipeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.RecipeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	recipe, err := h.recipes.Create(r.Context(), viewerID(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.present.recipe(recipe))
}

// HandleUpdate patches a recipe. Only the author may do this.
//
// HTTP: PATCH /api/recipes/{id}/
func (h *RecipeHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var patch service.RecipePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	recipe, err := h.recipes.Update(r.Context(), viewerID(r), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present.recipe(recipe))
}

// HandleDelete removes a recipe. Only the author may do this.
//
// HTTP: DELETE /api/recipes/{id}/
func (h *RecipeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.recipes.Delete(r.Context(), viewerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFavorite:       POST   /api/recipes/{id}/favorite/
// HandleUnfavorite:     DELETE /api/recipes/{id}/favorite/
// HandleAddToCart:      POST   /api/recipes/{id}/shopping_cart/
// HandleRemoveFromCart: DELETE /api/recipes/{id}/shopping_cart/

func (h *RecipeHandler) HandleFavorite(w http.ResponseWriter, r *http.Request) {
	h.add(w, r, h.recipes.AddFavorite)
}

func (h *RecipeHandler) HandleUnfavorite(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, h.recipes.RemoveFavorite)
}

func (h *RecipeHandler) HandleAddToCart(w http.ResponseWriter, r *http.Request) {
	h.add(w, r, h.recipes.AddToCart)
}

func (h *RecipeHandler) HandleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, h.recipes.RemoveFromCart)
}

type (
	addFunc    func(ctx context.Context, userID, recipeID int64) (*model.RecipeShort, error)
	removeFunc func(ctx context.Context, userID, recipeID int64) error
)

func (h *RecipeHandler) add(w http.ResponseWriter, r *http.Request, op addFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	short, err := op(r.Context(), viewerID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.present.short(*short))
}

func (h *RecipeHandler) remove(w http.ResponseWriter, r *http.Request, op removeFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := op(r.Context(), viewerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDownloadShoppingList sends the aggregated cart as a text file.
//
// HTTP: GET /api/recipes/download_shopping_cart/
func (h *RecipeHandler) HandleDownloadShoppingList(w http.ResponseWriter, r *http.Request) {
	list, err := h.recipes.ShoppingList(r.Context(), viewerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+shoppingListFilename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(list)); err != nil {
		h.logger.Warn("failed to write shopping list", slog.String("error", err.Error()))
	}
}

// HandleGetLink returns the recipe's short link.
//
// HTTP: GET /api/recipes/{id}/get-link/
// Response: {"short-link": "http://host/s/3f9a1c0b7e"}
func (h *RecipeHandler) HandleGetLink(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	code, err := h.shortLinks.Code(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"short-link": h.absolute("/s/" + code),
	})
}

// HandleShortRedirect sends the browser to the recipe behind a short code.
//
// HTTP: GET /s/{code}
func (h *RecipeHandler) HandleShortRedirect(w http.ResponseWriter, r *http.Request) {
	recipeID, err := h.shortLinks.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, h.absolute("/recipes/"+strconv.FormatInt(recipeID, 10)), http.StatusFound)
}

func (h *RecipeHandler) absolute(path string) string {
	return strings.TrimRight(h.present.baseURL, "/") + path
}
