// Package network builds the static trail network edge table.
package network

import (
	"errors"
	"sort"

	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/paulmach/orb"
)

// ErrEmptyNetwork is returned when a network source yields no edges.
var ErrEmptyNetwork = errors.New("network has no edges")

// RawEdge is an edge as read from the network source, before deduplication.
type RawEdge struct {
	U        int64
	V        int64
	Geometry orb.LineString
}

// Table is the read-only NetworkEdge table. Safe for concurrent use.
type Table struct {
	edges []models.NetworkEdge // edges[i].ID == i+1
	byKey map[models.EdgeKey]int64
}

// BuildTable normalizes endpoints to (min, max), drops duplicate pairs keeping
// the first occurrence, sorts by u (then v) and assigns ids 1..N.
func BuildTable(raw []RawEdge) (*Table, error) {
	seen := make(map[models.EdgeKey]struct{}, len(raw))
	edges := make([]models.NetworkEdge, 0, len(raw))

	for _, r := range raw {
		key := models.NewEdgeKey(r.U, r.V)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		edges = append(edges, models.NetworkEdge{U: key.U, V: key.V, Geometry: r.Geometry})
	}
	if len(edges) == 0 {
		return nil, ErrEmptyNetwork
	}

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].U != edges[j].U {
			return edges[i].U < edges[j].U
		}
		return edges[i].V < edges[j].V
	})
	for i := range edges {
		edges[i].ID = int64(i + 1)
	}

	return NewTable(edges)
}

// NewTable wraps edges that already carry dense ids 1..N.
func NewTable(edges []models.NetworkEdge) (*Table, error) {
	if len(edges) == 0 {
		return nil, ErrEmptyNetwork
	}

	t := &Table{
		edges: make([]models.NetworkEdge, len(edges)),
		byKey: make(map[models.EdgeKey]int64, len(edges)),
	}
	for _, e := range edges {
		if e.ID < 1 || int(e.ID) > len(edges) {
			return nil, errors.New("edge ids must form a dense 1..N range")
		}
		t.edges[e.ID-1] = e
		t.byKey[e.Key()] = e.ID
	}
	if len(t.byKey) != len(edges) {
		return nil, errors.New("duplicate edge endpoints")
	}
	return t, nil
}

// Len returns the number of edges.
func (t *Table) Len() int {
	return len(t.edges)
}

// Edges returns the edges ordered by id. The slice must not be modified.
func (t *Table) Edges() []models.NetworkEdge {
	return t.edges
}

// Edge returns the edge with the given id.
func (t *Table) Edge(id int64) (models.NetworkEdge, bool) {
	if id < 1 || int(id) > len(t.edges) {
		return models.NetworkEdge{}, false
	}
	return t.edges[id-1], true
}

// Lookup returns the id of the edge joining u and v in either direction.
func (t *Table) Lookup(u, v int64) (int64, bool) {
	id, ok := t.byKey[models.NewEdgeKey(u, v)]
	return id, ok
}

// Geometries returns edge geometries indexed by id-1.
func (t *Table) Geometries() []orb.LineString {
	out := make([]orb.LineString, len(t.edges))
	for i, e := range t.edges {
		out[i] = e.Geometry
	}
	return out
}
