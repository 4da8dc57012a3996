package meshdof

import (
	"errors"
	"fmt"

	"github.com/hupe1980/meshdof/doflevel"
)

var (
	// ErrNotDistributed is returned by queries that need a completed
	// DoF numbering pass before they make sense.
	ErrNotDistributed = errors.New("DoFs have not been distributed")
)

// ErrLevelOutOfRange indicates a mesh level index outside the handler.
type ErrLevelOutOfRange struct {
	Level     int
	NumLevels int
}

func (e *ErrLevelOutOfRange) Error() string {
	return fmt.Sprintf("level %d out of range (handler holds %d levels)", e.Level, e.NumLevels)
}

// ErrCellOutOfRange indicates a cell index outside its level.
type ErrCellOutOfRange struct {
	Level    int
	Cell     int
	NumCells int
}

func (e *ErrCellOutOfRange) Error() string {
	return fmt.Sprintf("cell %d out of range on level %d (%d cells)", e.Cell, e.Level, e.NumCells)
}

// ErrUnknownVariant indicates a variant index not present in the
// handler's element collection.
type ErrUnknownVariant struct {
	FE   doflevel.FEIndex
	NFEs int
}

func (e *ErrUnknownVariant) Error() string {
	return fmt.Sprintf("variant %d not in collection (%d elements)", e.FE, e.NFEs)
}
