package graph

// Store is the deduplicated node and edge set of one run.
type Store struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	adjacent  map[string][]*Edge

	suspicious int
	accounts   int
	assets     int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		nodes:    make(map[string]*Node),
		edges:    make(map[string]*Edge),
		adjacent: make(map[string][]*Edge),
	}
}

// UpsertNode inserts a copy of n, or merges it into the node with the same
// id. It returns the stored node.
func (s *Store) UpsertNode(n Node) *Node {
	if existing, ok := s.nodes[n.ID]; ok {
		existing.merge(&n)
		return existing
	}
	stored := &Node{ID: n.ID, Kind: n.Kind}
	stored.merge(&n)
	s.nodes[n.ID] = stored
	s.nodeOrder = append(s.nodeOrder, n.ID)
	switch n.Kind {
	case KindAccount:
		s.accounts++
	case KindAsset:
		s.assets++
	}
	return stored
}

// UpsertEdge inserts e or merges it into the existing edge for the same
// unordered pair (weight = max, suspicious = OR). It reports false, and
// does nothing, when either endpoint is missing or e is a self-loop.
func (s *Store) UpsertEdge(e Edge) bool {
	if e.Source == e.Target {
		return false
	}
	if _, ok := s.nodes[e.Source]; !ok {
		return false
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return false
	}

	key := pairKey(e.Source, e.Target)
	if existing, ok := s.edges[key]; ok {
		existing.Weight = max(existing.Weight, e.Weight)
		if e.IsSuspicious && !existing.IsSuspicious {
			existing.IsSuspicious = true
			s.suspicious++
		}
		if e.Kind != "" && !existing.HasKind(e.Kind) {
			existing.Kinds = append(existing.Kinds, e.Kind)
		}
		return true
	}

	stored := &Edge{
		Source:       e.Source,
		Target:       e.Target,
		Weight:       e.Weight,
		IsSuspicious: e.IsSuspicious,
		Kind:         e.Kind,
	}
	if e.Kind != "" {
		stored.Kinds = []RelationshipKind{e.Kind}
	}
	s.edges[key] = stored
	s.edgeOrder = append(s.edgeOrder, key)
	s.adjacent[e.Source] = append(s.adjacent[e.Source], stored)
	s.adjacent[e.Target] = append(s.adjacent[e.Target], stored)
	if stored.IsSuspicious {
		s.suspicious++
	}
	return true
}

// FindNode returns the node with id, or nil.
func (s *Store) FindNode(id string) *Node {
	return s.nodes[id]
}

// EdgesOf returns the edges incident to id in insertion order.
func (s *Store) EdgesOf(id string) []*Edge {
	return s.adjacent[id]
}

// Neighbors returns the ids adjacent to id in edge insertion order.
func (s *Store) Neighbors(id string) []string {
	edges := s.adjacent[id]
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Other(id))
	}
	return out
}

// Edge returns the edge between a and b, or nil.
func (s *Store) Edge(a, b string) *Edge {
	return s.edges[pairKey(a, b)]
}

// HasEdge reports whether a and b are connected.
func (s *Store) HasEdge(a, b string) bool {
	_, ok := s.edges[pairKey(a, b)]
	return ok
}

// Nodes returns the stored nodes in insertion order.
func (s *Store) Nodes() []*Node {
	out := make([]*Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, s.nodes[id])
	}
	return out
}

// Edges returns the stored edges in insertion order.
func (s *Store) Edges() []*Edge {
	out := make([]*Edge, 0, len(s.edgeOrder))
	for _, k := range s.edgeOrder {
		out = append(out, s.edges[k])
	}
	return out
}

// NodeCount returns the number of stored nodes of any kind.
func (s *Store) NodeCount() int { return len(s.nodeOrder) }

// EdgeCount returns the number of distinct undirected edges.
func (s *Store) EdgeCount() int { return len(s.edgeOrder) }

// AccountCount returns the number of account nodes.
func (s *Store) AccountCount() int { return s.accounts }

// AssetCount returns the number of asset nodes.
func (s *Store) AssetCount() int { return s.assets }

// SuspiciousEdgeCount returns how many edges are flagged suspicious. An
// edge counts once, whether it was inserted suspicious or merged into it.
func (s *Store) SuspiciousEdgeCount() int { return s.suspicious }

// Snapshot returns deep copies of all nodes and edges, safe to hand to
// another goroutine.
func (s *Store) Snapshot() ([]Node, []Edge) {
	nodes := make([]Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		n := *s.nodes[id]
		n.Reasons = append([]string(nil), n.Reasons...)
		if n.Enhanced != nil {
			e := *n.Enhanced
			n.Enhanced = &e
		}
		if n.Interaction != nil {
			i := *n.Interaction
			n.Interaction = &i
		}
		nodes = append(nodes, n)
	}
	edges := make([]Edge, 0, len(s.edgeOrder))
	for _, k := range s.edgeOrder {
		e := *s.edges[k]
		e.Kinds = append([]RelationshipKind(nil), e.Kinds...)
		edges = append(edges, e)
	}
	return nodes, edges
}
