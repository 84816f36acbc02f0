package blob

import memorystore "fedaidash/internal/infra/blob/memory"

// NewMemory returns an in-memory store suitable for tests.
func NewMemory() Store { return memorystore.New() }
