package model

import "errors"

var (
	// ErrValidation marks a malformed operating point or request.
	ErrValidation = errors.New("validation error")
	// ErrModelNotReady is returned when no trained or loaded model is published.
	ErrModelNotReady = errors.New("model not ready")
	// ErrSchemaMismatch is returned when a persisted bundle is internally inconsistent.
	ErrSchemaMismatch = errors.New("model schema mismatch")
	// ErrNoBundle is returned by a store that holds no persisted bundle yet.
	ErrNoBundle = errors.New("no persisted model bundle")
	// ErrUnavailable marks an operation whose backing collaborator is not configured.
	ErrUnavailable = errors.New("not available")
)
