package labelmatch

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks fatal setup problems: the catalog and the live provider disagree.
	ErrConfiguration = errors.New("labelmatch: configuration error")
	// ErrDimensionMismatch is returned when vector lengths disagree with the catalog dimensions.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrConfiguration)
	// ErrModelMismatch is returned when the provider model differs from the catalog model.
	ErrModelMismatch = fmt.Errorf("%w: model mismatch", ErrConfiguration)
	// ErrProvider marks a failure to acquire or use the embedding backend.
	ErrProvider = errors.New("labelmatch: embedding provider failure")
	// ErrMalformedCatalog marks an unreadable or structurally invalid catalog document.
	ErrMalformedCatalog = errors.New("labelmatch: malformed catalog")
	// ErrEmptyText is the per-item error for blank embedding inputs.
	ErrEmptyText = errors.New("labelmatch: empty text")
)
