// Package fe provides the finite element variant catalog consulted by the
// DoF bookkeeping layer. A variant is a choice of polynomial space
// assignable per cell; the only query the bookkeeping depends on is how
// many DoFs a variant contributes on an object of a given dimension.
package fe

import (
	"fmt"

	"github.com/hupe1980/meshdof/doflevel"
)

// Element describes one finite element variant.
type Element interface {
	// Name returns a stable human-readable identifier, e.g. "Q2".
	Name() string

	// DoFsPerObject returns the number of DoFs a cell of this variant
	// contributes on an object of geometric dimension dim (1, 2 or 3).
	DoFsPerObject(dim int) int
}

// lagrange is a continuous Lagrange element of polynomial degree p.
type lagrange struct {
	degree int
}

// Q returns the continuous Lagrange element of degree p. It contributes
// (p+1)^dim DoFs per cell object.
func Q(p int) Element {
	if p < 1 {
		panic(fmt.Sprintf("fe: Q requires degree >= 1, got %d", p))
	}
	return lagrange{degree: p}
}

func (e lagrange) Name() string { return fmt.Sprintf("Q%d", e.degree) }

func (e lagrange) DoFsPerObject(dim int) int {
	checkDim(dim)
	n := 1
	for i := 0; i < dim; i++ {
		n *= e.degree + 1
	}
	return n
}

// dgq is a discontinuous Lagrange element of polynomial degree p. It has
// the same per-cell DoF count as Q but no inter-cell coupling, so degree
// 0 is allowed.
type dgq struct {
	degree int
}

// DGQ returns the discontinuous Lagrange element of degree p.
func DGQ(p int) Element {
	if p < 0 {
		panic(fmt.Sprintf("fe: DGQ requires degree >= 0, got %d", p))
	}
	return dgq{degree: p}
}

func (e dgq) Name() string { return fmt.Sprintf("DGQ%d", e.degree) }

func (e dgq) DoFsPerObject(dim int) int {
	checkDim(dim)
	n := 1
	for i := 0; i < dim; i++ {
		n *= e.degree + 1
	}
	return n
}

// fixed is an element with an explicit DoF count table, independent of
// any polynomial space. Useful for synthetic workloads and tests.
type fixed struct {
	name  string
	count int
}

// Fixed returns an element that contributes the same number of DoFs on
// every object dimension.
func Fixed(name string, count int) Element {
	if count < 0 {
		panic(fmt.Sprintf("fe: Fixed requires a non-negative count, got %d", count))
	}
	return fixed{name: name, count: count}
}

func (e fixed) Name() string { return e.name }

func (e fixed) DoFsPerObject(dim int) int {
	checkDim(dim)
	return e.count
}

func checkDim(dim int) {
	if dim < 1 || dim > 3 {
		panic(fmt.Sprintf("fe: dimension must be 1, 2 or 3, got %d", dim))
	}
}

// Collection is an append-only list of element variants. The position of
// an element is its doflevel.FEIndex; positions never shift, so indices
// stored in a level stay valid for the collection's lifetime.
//
// Collection satisfies doflevel.Catalog.
type Collection struct {
	elements []Element
}

var _ doflevel.Catalog = (*Collection)(nil)

// NewCollection creates a collection holding the given elements in order.
func NewCollection(elements ...Element) *Collection {
	c := &Collection{}
	for _, e := range elements {
		c.Push(e)
	}
	return c
}

// Push appends an element and returns its variant index.
func (c *Collection) Push(e Element) doflevel.FEIndex {
	if e == nil {
		panic("fe: cannot push a nil element")
	}
	c.elements = append(c.elements, e)
	return doflevel.FEIndex(len(c.elements) - 1)
}

// Len returns the number of elements in the collection.
func (c *Collection) Len() int { return len(c.elements) }

// Element returns the element with the given variant index. An
// out-of-range index means the parallel arrays referencing this
// collection are corrupted, which is fatal.
func (c *Collection) Element(fe doflevel.FEIndex) Element {
	if int(fe) >= len(c.elements) {
		panic(fmt.Sprintf("fe: variant %d out of range (collection holds %d elements)", fe, len(c.elements)))
	}
	return c.elements[fe]
}

// DoFsPerObject implements doflevel.Catalog.
func (c *Collection) DoFsPerObject(fe doflevel.FEIndex, dim int) int {
	return c.Element(fe).DoFsPerObject(dim)
}

// MaxDoFsPerObject returns the largest per-object DoF count over all
// elements, the size bound consumers use to preallocate scratch space.
func (c *Collection) MaxDoFsPerObject(dim int) int {
	maxDoFs := 0
	for _, e := range c.elements {
		if n := e.DoFsPerObject(dim); n > maxDoFs {
			maxDoFs = n
		}
	}
	return maxDoFs
}
