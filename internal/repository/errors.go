package repository

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/tix-gate/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrStateChanged means a compare-and-swap guard found the row in a
	// different state than the caller expected.
	ErrStateChanged = errors.New("state changed concurrently")
	// ErrUnavailable marks a store that could not be reached; callers may retry.
	ErrUnavailable = fmt.Errorf("ledger store unavailable: %w", domain.ErrTransient)
)
