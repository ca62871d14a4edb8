// Package service holds the business rules of the recipe site.
//
// Handlers parse HTTP and call a service with plain values; services
// validate input, enforce ownership and orchestrate repositories and the
// image store; repositories only speak SQL. Services return apperror values
// and never know about status codes.
//
//	Handler → Service → Repository → SQLite
//	             ↘ ImageStore
//
// Every service takes its repositories as interfaces, so the tests in this
// package run against in-memory fakes.
package service

import "github.com/sakif/foodgram/internal/repository"

// Pagination defaults shared by every list endpoint.
const (
	DefaultPageSize = 6
	MaxPageSize     = 100
)

// pageOptions turns a 1-based page number and page size into repository
// limit/offset, clamping both into range.
func pageOptions(page, limit int) repository.ListOptions {
	limit = ClampLimit(limit)
	if page < 1 {
		page = 1
	}
	return repository.ListOptions{Limit: limit, Offset: (page - 1) * limit}
}

// ClampLimit returns the page size actually used for a requested limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
