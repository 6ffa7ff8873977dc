// Copyright 2025 James Ross

// Package query is the status-query surface from spec §4.7 (carried
// forward from spec.md §4.5 "Status query"): given an operation ID,
// scan every tier in a fixed order and report which one holds it.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/flyingrobots/go-redis-work-queue/internal/operation"
	"github.com/flyingrobots/go-redis-work-queue/internal/store"
	"github.com/google/uuid"
)

// ErrNotFound is returned when an operation ID is not present in any
// tier — either it was never submitted, or (for completed/failed/
// dead_letter) it has aged out of a bounded range scan.
var ErrNotFound = errors.New("query: operation not found")

// scanOrder matches spec §9's Open Question resolution: failed is
// scanned even though the worker loop never writes to it directly
// (reserved for external writers), pending/in_flight ahead of the
// terminal tiers so an operation's most current location wins.
var scanOrder = []string{store.TierPending, store.TierInFlight, store.TierCompleted, store.TierFailed, store.TierDeadLetter}

// maxScanPerTier bounds how far back into a list-shaped tier Status
// will look; terminal tiers grow unboundedly and a full scan would be
// an unbounded-cost lookup for an old operation.
const maxScanPerTier = 10000

// Finder is the query surface over a store.Store. It only reads
// (RangeScored and ListRange) and never mutates state.
type Finder struct {
	store store.Store
}

// New builds a Finder over s.
func New(s store.Store) *Finder {
	return &Finder{store: s}
}

// Status returns the operation and the tier name it was found in.
func (f *Finder) Status(ctx context.Context, id uuid.UUID) (operation.Operation, string, error) {
	for _, tier := range scanOrder {
		op, found, err := f.scanTier(ctx, tier, id)
		if err != nil {
			return operation.Operation{}, "", fmt.Errorf("query: scanning %s: %w", tier, err)
		}
		if found {
			return op, tier, nil
		}
	}
	return operation.Operation{}, "", ErrNotFound
}

func (f *Finder) scanTier(ctx context.Context, tier string, id uuid.UUID) (operation.Operation, bool, error) {
	members, err := f.members(ctx, tier)
	if err != nil {
		return operation.Operation{}, false, err
	}
	for _, raw := range members {
		op, err := operation.Unmarshal(raw)
		if err != nil {
			continue // tolerate poison entries rather than fail the whole scan
		}
		if op.ID == id {
			return op, true, nil
		}
	}
	return operation.Operation{}, false, nil
}

// Field extracts a single value out of an operation's response_data
// (or, if absent, its record) by JSONPath — e.g. "$.contact.id" —
// so a caller can pull one field out of an otherwise opaque
// provider-shaped blob without a per-provider struct.
func (f *Finder) Field(ctx context.Context, id uuid.UUID, path string) (any, error) {
	op, _, err := f.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := op.ResponseData
	if doc == nil {
		doc = op.Record
	}
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("query: field %q: %w", path, err)
	}
	return v, nil
}

func (f *Finder) members(ctx context.Context, tier string) ([]string, error) {
	switch tier {
	case store.TierPending, store.TierInFlight:
		return f.store.RangeScored(ctx, tier, 0, maxScanPerTier-1)
	default:
		return f.store.ListRange(ctx, tier, 0, maxScanPerTier-1)
	}
}
