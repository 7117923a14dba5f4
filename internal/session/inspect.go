package session

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Node is one materialised value in an object graph produced by Inspect.
// Container nodes are recorded in a per-call ref → *Node map and
// referenced by pointer — the analogue of the source's reference-map-plus-
// heap-identity design (spec.md §9): a container's children hold the same
// *Node a cycle participant was first recorded under, so a cycle shows up
// as two fields pointing at the same *Node instance.
type Node struct {
	// Ref is the handle this node was materialised from; 0 for nodes with
	// no backing reference is never valid here since only objects (which
	// always have a non-zero ref) get an arena entry, but primitives and
	// opaque values still copy their originating Ref for round-tripping.
	Ref int

	Primitive bool
	Value     interface{} // decoded primitive, or valueAsString for non-object non-primitives

	IsArray bool
	Seq     []*Node          // populated when IsArray
	Map     map[string]*Node // populated when !IsArray (and this is a container)
	Proto   *Node            // set only when InspectProto is true and __proto__ was an object
}

// InspectOptions configures Inspect (spec.md §4.3).
type InspectOptions struct {
	// MaxDepth bounds recursion; 0 means the default of 16.
	MaxDepth int
	// InspectProto, when true, recurses into a child named "__proto__"
	// (only if its value is itself an object) instead of skipping it.
	InspectProto bool
}

const defaultMaxDepth = 16

type inspector struct {
	sess         *Session
	inspectProto bool

	mu   sync.Mutex
	seen map[int]*Node
}

// Inspect produces a concrete value tree from a remote Handle (spec.md
// §4.3). Cycles terminate via reference-map memoisation; per-node
// variables fetch failures are swallowed, leaving that node's container
// empty rather than failing the whole call.
func Inspect(sess *Session, v Variable, opts InspectOptions) *Node {
	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = defaultMaxDepth
	}
	ins := &inspector{sess: sess, inspectProto: opts.InspectProto, seen: make(map[int]*Node)}
	return ins.inspect(v, maxDepth)
}

func (ins *inspector) inspect(v Variable, depth int) *Node {
	if v.Primitive {
		return &Node{Ref: v.Ref, Primitive: true, Value: v.PrimitiveValue}
	}
	if v.Type != TypeObject {
		return &Node{Ref: v.Ref, Primitive: false, Value: v.ValueAsString}
	}
	if depth <= 0 {
		return &Node{Ref: v.Ref, Primitive: false, Value: v.ValueAsString}
	}

	ins.mu.Lock()
	if existing, ok := ins.seen[v.Ref]; ok {
		ins.mu.Unlock()
		return existing
	}
	node := &Node{Ref: v.Ref, IsArray: v.IsArray}
	if v.IsArray {
		node.Seq = []*Node{}
	} else {
		node.Map = make(map[string]*Node)
	}
	ins.seen[v.Ref] = node
	ins.mu.Unlock()

	children, err := ins.fetchChildren(v)
	if err != nil {
		// Partial failure preferred over propagating: leave the container
		// empty (spec.md §4.3, §7).
		return node
	}

	if v.IsArray {
		ins.expandIndexed(node, children, depth)
		return node
	}

	ins.expandNamed(node, children, depth)
	return node
}

func (ins *inspector) fetchChildren(v Variable) ([]Variable, error) {
	filter := VariablesFilter{}
	if v.IsArray {
		filter = VariablesFilter{Filter: "indexed", Start: 0, Count: v.IndexedCount}
	}
	return ins.sess.InspectVariable(v.Ref, filter)
}

// expandIndexed materialises array elements in parallel, preserving
// order by index regardless of completion order (spec.md §5 ordering
// guarantees only bind the wire, not sibling expansion order).
func (ins *inspector) expandIndexed(node *Node, children []Variable, depth int) {
	seq := make([]*Node, len(children))
	var g errgroup.Group
	for i, child := range children {
		i, child := i, child
		g.Go(func() error {
			seq[i] = ins.inspect(child, depth-1)
			return nil
		})
	}
	_ = g.Wait()
	node.Seq = seq
}

// expandNamed materialises object properties in parallel, keyed by name.
// __proto__ is special-cased per spec.md §4.3 prototype handling.
func (ins *inspector) expandNamed(node *Node, children []Variable, depth int) {
	type entry struct {
		name string
		n    *Node
	}
	entries := make([]entry, 0, len(children))
	var proto *Node
	var mu sync.Mutex
	var g errgroup.Group

	for _, child := range children {
		child := child
		if child.Name == "__proto__" {
			if !ins.inspectProto || child.Type != TypeObject {
				continue
			}
			g.Go(func() error {
				p := ins.inspect(child, depth-1)
				mu.Lock()
				proto = p
				mu.Unlock()
				return nil
			})
			continue
		}
		g.Go(func() error {
			n := ins.inspect(child, depth-1)
			mu.Lock()
			entries = append(entries, entry{child.Name, n})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, e := range entries {
		node.Map[e.name] = e.n
	}
	node.Proto = proto
}
