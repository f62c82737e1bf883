package engine

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// NeighbourCoordinates returns the coordinate in each direction from at,
// wrapped on a torus. Directions that leave a bounded non-torus grid are
// omitted.
func NeighbourCoordinates(canvas *types.Canvas, at types.Coord, dirs []types.Direction) (map[types.Direction]types.Coord, error) {
	out := make(map[types.Direction]types.Coord, len(dirs))
	var maxCoord types.Coord
	if canvas.IsTorus {
		var err error
		if maxCoord, err = canvas.MaxCoordinates(); err != nil {
			return nil, err
		}
	}
	for _, d := range dirs {
		c := at.Add(d.Offset())
		switch canvas.Topology() {
		case types.TopologyTorus:
			var err error
			if c, err = types.CorrectForTorus(c, maxCoord); err != nil {
				return nil, err
			}
		case types.TopologyGrid:
			if !types.InBounds(c, canvas.GridWidth, canvas.GridHeight) {
				continue
			}
		}
		out[d] = c
	}
	return out, nil
}

// GetNeighbours returns the cells around cellID: the four cardinals, or all
// eight directions with includeCorners. Directions without a cell map to nil
// when includeNull is true and are omitted otherwise.
func (e *Engine) GetNeighbours(cellID string, includeCorners, includeNull bool) (map[types.Direction]*types.Cell, error) {
	cell, err := e.GetCell(cellID)
	if err != nil {
		return nil, err
	}
	canvas, err := e.GetCanvas(cell.CanvasID)
	if err != nil {
		return nil, err
	}
	return e.neighbours(canvas, cell, types.NeighbourOffsets(includeCorners), includeNull)
}

func (e *Engine) neighbours(canvas *types.Canvas, cell *types.Cell, dirs []types.Direction, includeNull bool) (map[types.Direction]*types.Cell, error) {
	coords, err := NeighbourCoordinates(canvas, cell.Coord(), dirs)
	if err != nil {
		return nil, err
	}
	out := make(map[types.Direction]*types.Cell, len(dirs))
	for _, d := range dirs {
		c, ok := coords[d]
		if !ok {
			if includeNull {
				out[d] = nil
			}
			continue
		}
		n, found, err := e.cellAt(canvas.CanvasID, c)
		if err != nil {
			return nil, fmt.Errorf("looking up %s neighbour of %s: %w", d, cell.Coord(), err)
		}
		if found {
			out[d] = n
		} else if includeNull {
			out[d] = nil
		}
	}
	return out, nil
}

// BlankWithNeighbourEdges returns zero-filled edge arrays for the cell with
// each shared edge copied from the latest valid edit of the cardinal
// neighbour on that side.
func (e *Engine) BlankWithNeighbourEdges(cellID string) (types.Edges, error) {
	cell, err := e.GetCell(cellID)
	if err != nil {
		return types.Edges{}, err
	}
	canvas, err := e.GetCanvas(cell.CanvasID)
	if err != nil {
		return types.Edges{}, err
	}
	return e.blankWithNeighbourEdges(canvas, cell)
}

// blankWithNeighbourEdges works on an unsaved cell too; only its canvas and
// position are used to find neighbours.
func (e *Engine) blankWithNeighbourEdges(canvas *types.Canvas, cell *types.Cell) (types.Edges, error) {
	blank := cell.Blank()
	neighbours, err := e.neighbours(canvas, cell, types.NeighbourOffsets(false), false)
	if err != nil {
		return types.Edges{}, err
	}

	portions := cell.AdjacentEdgePortions()
	for _, d := range types.CardinalDirections {
		n, ok := neighbours[d]
		if !ok || n.CellID == cell.CellID {
			continue
		}
		latest, err := e.LatestValidEdit(n.CellID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return types.Edges{}, err
		}
		p := portions[d]
		copy(types.PortionOf(*blank.Field(p.Edge), p.Self), types.PortionOf(*latest.Field(p.Edge), p.Neighbour))
	}
	return blank, nil
}
