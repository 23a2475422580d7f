// Package territory tracks which region controls which tile and decides where
// each region's units go next.
//
// Ownership lives in a single Index. Regions change it only through their own
// AddTile/RemoveTile, and the grid reads it through world.OwnershipView.
package territory

import (
	"errors"
	"fmt"

	"github.com/talgya/frontline/internal/world"
)

var (
	// ErrInvariantViolation marks an internal-consistency failure: a tile owned
	// twice, an index entry without a matching region, or an assigned tile that
	// is already controlled. There is no recovery path.
	ErrInvariantViolation = errors.New("territory invariant violated")

	ErrUnknownRegion = errors.New("unknown region")
	ErrRegionExists  = errors.New("region already exists")
)

// Index maps positions to the region that controls them.
type Index struct {
	owners map[world.Pos]world.Occupation
}

// NewIndex creates an empty ownership index.
func NewIndex() *Index {
	return &Index{owners: make(map[world.Pos]world.Occupation)}
}

// OwnerOf returns the occupation recorded for p.
func (ix *Index) OwnerOf(p world.Pos) (world.Occupation, bool) {
	o, ok := ix.owners[p]
	return o, ok
}

// Len returns the number of owned positions.
func (ix *Index) Len() int { return len(ix.owners) }

func (ix *Index) claim(p world.Pos, occ world.Occupation) error {
	if cur, ok := ix.owners[p]; ok && cur != occ {
		return fmt.Errorf("%w: %s claimed by %s but owned by %s", ErrInvariantViolation, p, occ.Region, cur.Region)
	}
	ix.owners[p] = occ
	return nil
}

func (ix *Index) release(p world.Pos, region world.RegionID) {
	if cur, ok := ix.owners[p]; ok && cur.Region == region {
		delete(ix.owners, p)
	}
}
