package model

import "time"

// Recipe is the recipe aggregate: the recipe row plus its ingredient links.
//
// Image holds a storage key. Author, IsFavorited and IsInShoppingCart are
// filled on reads and depend on who is asking.
type Recipe struct {
	ID               int64              `json:"id"`
	AuthorID         int64              `json:"-"`
	Author           *User              `json:"author"`
	Name             string             `json:"name"`
	Text             string             `json:"text"`
	CookingTime      int                `json:"cooking_time"`
	Image            string             `json:"image"`
	Ingredients      []RecipeIngredient `json:"ingredients"`
	IsFavorited      bool               `json:"is_favorited"`
	IsInShoppingCart bool               `json:"is_in_shopping_cart"`
	CreatedAt        time.Time          `json:"-"`
}

// RecipeShort is the compact form returned by favorite/cart toggles and
// embedded in subscription entries.
type RecipeShort struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	CookingTime int    `json:"cooking_time"`
}

// Short returns the compact representation of r.
func (r *Recipe) Short() RecipeShort {
	return RecipeShort{
		ID:          r.ID,
		Name:        r.Name,
		Image:       r.Image,
		CookingTime: r.CookingTime,
	}
}

// ShoppingListItem is one aggregated line of a shopping list.
type ShoppingListItem struct {
	Name            string
	MeasurementUnit string
	Amount          int64
}
