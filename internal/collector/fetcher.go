package collector

import (
	"context"
	"fmt"

	"TradeSentinel/internal/model"
)

// Fetcher retrieves the recent posts of a source.
type Fetcher interface {
	Fetch(ctx context.Context, source model.Source) ([]model.RawItem, error)
	Name() string
}

// FetchError reports a failed fetch for one source.
type FetchError struct {
	Source   model.Source
	NotFound bool
	Err      error
}

func (e *FetchError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("fetch %s: not found", e.Source)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
