package store

import "github.com/listenupapp/listenup-client/internal/errors"

// Sentinel errors.
var ErrNotFound = errors.NotFound("record not found")
