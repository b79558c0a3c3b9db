// Package services holds the business logic for the miniature collection:
// cached listing, the multi-step write pipeline, the type/category taxonomy,
// tags, and the product hierarchy.
//
// This file centralizes the service-level error values so callers can check
// them consistently; translation into HTTP status codes happens in the
// handler layer.
package services

import "errors"

// Miniature-related errors.
var (
	// ErrMiniatureNotFound indicates the requested miniature does not exist.
	ErrMiniatureNotFound = errors.New("miniature not found")

	// ErrNameRequired is returned when a create/update carries a blank name.
	ErrNameRequired = errors.New("name is required")

	// ErrNegativeQuantity is returned when a quantity below zero is submitted.
	ErrNegativeQuantity = errors.New("quantity must be zero or positive")

	// ErrTagNameRequired is returned when a not-yet-persisted tag (negative
	// id) arrives without a name to create it from.
	ErrTagNameRequired = errors.New("new tag requires a name")
)

// Taxonomy-related errors.
var (
	// ErrTypeNotFound indicates the requested type does not exist.
	ErrTypeNotFound = errors.New("type not found")

	// ErrCategoryNotFound indicates the requested category does not exist.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrDuplicateName is returned when a type/category/tag name collides
	// case-insensitively with an existing row. The check is a read before a
	// write, so a concurrent duplicate can still slip through it.
	ErrDuplicateName = errors.New("name already exists")

	// ErrTypeInUse blocks deleting a type still assigned to miniatures.
	ErrTypeInUse = errors.New("type is assigned to miniatures")

	// ErrCategoryInUse blocks deleting a category still linked to types.
	ErrCategoryInUse = errors.New("category is linked to types")
)

// Product taxonomy errors.
var (
	// ErrCompanyNotFound indicates the requested company does not exist.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrCompanyInUse blocks deleting a company that still owns product lines.
	ErrCompanyInUse = errors.New("company has product lines")
)
