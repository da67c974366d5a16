package errors

import "errors"

var (
	ErrNotFound = errors.New("stop not found")

	ErrInvalidID = errors.New("invalid stop ID format")

	ErrUnknownReport = errors.New("unknown report")

	ErrEmptyUpload = errors.New("upload contains no rows")

	ErrTooManyRows = errors.New("upload exceeds the row limit")
)
