package storage

import (
	"errors"
	"fmt"

	appErrors "github.com/Novip1906/tasks-live/internal/errors"
)

var ErrNotFound = errors.New("key not found")

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", appErrors.ErrStoreUnavailable, err)
}
