package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/storage"
)

// Wire representations. Models carry storage keys for images; responses
// carry absolute URLs.

type userResponse struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	Username     string  `json:"username"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	IsSubscribed bool    `json:"is_subscribed"`
	Avatar       *string `json:"avatar"`
}

type recipeResponse struct {
	ID               int64                    `json:"id"`
	Author           userResponse             `json:"author"`
	Ingredients      []model.RecipeIngredient `json:"ingredients"`
	IsFavorited      bool                     `json:"is_favorited"`
	IsInShoppingCart bool                     `json:"is_in_shopping_cart"`
	Name             string                   `json:"name"`
	Image            string                   `json:"image"`
	Text             string                   `json:"text"`
	CookingTime      int                      `json:"cooking_time"`
}

type subscriptionResponse struct {
	userResponse
	Recipes      []model.RecipeShort `json:"recipes"`
	RecipesCount int                 `json:"recipes_count"`
}

// pageResponse is the envelope of every paginated list.
type pageResponse[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// presenter turns models into responses.
type presenter struct {
	images  storage.ImageStore
	baseURL string
}

func (p presenter) user(u *model.User) userResponse {
	resp := userResponse{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		IsSubscribed: u.IsSubscribed,
	}
	if u.Avatar != "" {
		avatar := p.images.URL(u.Avatar)
		resp.Avatar = &avatar
	}
	return resp
}

func (p presenter) recipe(r *model.Recipe) recipeResponse {
	resp := recipeResponse{
		ID:               r.ID,
		Ingredients:      r.Ingredients,
		IsFavorited:      r.IsFavorited,
		IsInShoppingCart: r.IsInShoppingCart,
		Name:             r.Name,
		Image:            p.images.URL(r.Image),
		Text:             r.Text,
		CookingTime:      r.CookingTime,
	}
	if r.Author != nil {
		resp.Author = p.user(r.Author)
	}
	if resp.Ingredients == nil {
		resp.Ingredients = []model.RecipeIngredient{}
	}
	return resp
}

func (p presenter) short(s model.RecipeShort) model.RecipeShort {
	s.Image = p.images.URL(s.Image)
	return s
}

func (p presenter) subscription(s *model.Subscription) subscriptionResponse {
	recipes := make([]model.RecipeShort, len(s.Recipes))
	for i, r := range s.Recipes {
		recipes[i] = p.short(r)
	}
	return subscriptionResponse{
		userResponse: p.user(&s.User),
		Recipes:      recipes,
		RecipesCount: s.RecipesCount,
	}
}

// pageNumberLinks builds next/previous URLs for ?page=N pagination.
func (p presenter) pageNumberLinks(r *http.Request, page, limit, count int) (next, prev *string) {
	if page < 1 {
		page = 1
	}
	if page*limit < count {
		next = p.withQuery(r, "page", page+1)
	}
	if page > 1 {
		prev = p.withQuery(r, "page", page-1)
	}
	return next, prev
}

// limitOffsetLinks builds next/previous URLs for ?limit=N&offset=M pagination.
func (p presenter) limitOffsetLinks(r *http.Request, limit, offset, count int) (next, prev *string) {
	if offset+limit < count {
		next = p.withQuery(r, "offset", offset+limit)
	}
	if offset > 0 {
		prev = p.withQuery(r, "offset", max(offset-limit, 0))
	}
	return next, prev
}

func (p presenter) withQuery(r *http.Request, key string, value int) *string {
	q := r.URL.Query()
	q.Set(key, strconv.Itoa(value))
	u := url.URL{Path: r.URL.Path, RawQuery: q.Encode()}
	link := strings.TrimRight(p.baseURL, "/") + u.String()
	return &link
}

func newPage[T any](items []T, count int, next, prev *string) pageResponse[T] {
	if items == nil {
		items = []T{}
	}
	return pageResponse[T]{Count: count, Next: next, Previous: prev, Results: items}
}
