package model

// Page is one slice of a larger result set. Count is the size of the whole
// set, not of Items.
type Page[T any] struct {
	Items []T
	Count int
}
