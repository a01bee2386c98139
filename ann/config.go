package ann

import (
	"errors"
	"fmt"
)

// Config holds HNSW construction and search parameters.
// The same Config must be used when a graph is rebuilt from stored vectors.
type Config struct {
	// M is the number of links per node on upper layers. Layer 0 keeps 2*M.
	M int

	// EfConstruction is the candidate list size while inserting.
	EfConstruction int

	// EfSearch is the candidate list size while searching. Search widens it
	// to k when k is larger.
	EfSearch int

	// Seed drives level assignment.
	Seed uint64
}

// ErrInvalidConfig indicates graph parameters out of range.
var ErrInvalidConfig = errors.New("invalid graph config")

// DefaultConfig returns parameters suited to corpora of tens of thousands of provisions.
func DefaultConfig() Config {
	return Config{
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
		Seed:           42,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.M < 2 {
		return fmt.Errorf("%w: M must be at least 2, got %d", ErrInvalidConfig, c.M)
	}
	if c.EfConstruction < 1 {
		return fmt.Errorf("%w: EfConstruction must be at least 1, got %d", ErrInvalidConfig, c.EfConstruction)
	}
	if c.EfSearch < 1 {
		return fmt.Errorf("%w: EfSearch must be at least 1, got %d", ErrInvalidConfig, c.EfSearch)
	}
	return nil
}
