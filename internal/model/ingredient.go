package model

// Ingredient is catalog reference data. (Name, MeasurementUnit) is unique.
type Ingredient struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
}

// IngredientAmount is one line of a recipe write request.
type IngredientAmount struct {
	ID     int64 `json:"id"     validate:"required"`
	Amount int   `json:"amount" validate:"gte=1,lte=32000"`
}

// RecipeIngredient is an ingredient as it appears inside a recipe.
type RecipeIngredient struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
	Amount          int    `json:"amount"`
}
