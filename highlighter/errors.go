package highlighter

import "errors"

// ErrNotFound is returned when no highlight with the requested id exists.
var ErrNotFound = errors.New("highlighter: highlight not found")

// ErrEmptySelection is returned when a capture request carries an empty,
// collapsed, or whitespace-only selection.
var ErrEmptySelection = errors.New("highlighter: empty selection")

// ErrInvalidInput is returned when request input fails validation.
var ErrInvalidInput = errors.New("highlighter: invalid input")
