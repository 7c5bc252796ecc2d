// Package tree rebuilds the page hierarchy from the flat, parent-pointer
// records returned by the source listing.
package tree

// Record is one source document: an identity, a display title and an
// optional parent identity. An empty ParentID marks a top-level document.
type Record struct {
	ID       string
	Title    string
	ParentID string
}

// Node wraps a Record with its direct children in discovery order.
type Node struct {
	Record   Record
	Children []*Node
}

// Forest is the set of root-level trees reconstructed from a run's records.
type Forest struct {
	Roots []*Node

	// Cycles lists the IDs that closed a parent cycle and were promoted to
	// roots to keep the walk finite.
	Cycles []string

	// Duplicates lists IDs that appeared more than once in the input. The last
	// record for an ID wins; it keeps the position of the first occurrence.
	Duplicates []string
}

// Build turns records into a Forest.
//
// A record whose parent is empty, or points at an ID outside the input set
// (a restricted or deleted page, for example), becomes a root. Children are
// attached in input order.
func Build(records []Record) *Forest {
	forest := &Forest{}
	if len(records) == 0 {
		return forest
	}

	nodes := make(map[string]*Node, len(records))
	order := make([]string, 0, len(records))
	seenDuplicate := make(map[string]bool)

	for _, record := range records {
		if existing, ok := nodes[record.ID]; ok {
			existing.Record = record
			if !seenDuplicate[record.ID] {
				seenDuplicate[record.ID] = true
				forest.Duplicates = append(forest.Duplicates, record.ID)
			}
			continue
		}
		nodes[record.ID] = &Node{Record: record}
		order = append(order, record.ID)
	}

	broken := findCycleBreaks(order, nodes)

	for _, id := range order {
		node := nodes[id]
		parentID := node.Record.ParentID

		parent, ok := nodes[parentID]
		if parentID == "" || !ok || broken[id] {
			forest.Roots = append(forest.Roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	for _, id := range order {
		if broken[id] {
			forest.Cycles = append(forest.Cycles, id)
		}
	}

	return forest
}

// findCycleBreaks follows every parent chain once. When a chain comes back to
// a node already on the current walk, that node is marked as a break point.
func findCycleBreaks(order []string, nodes map[string]*Node) map[string]bool {
	const (
		unvisited = iota
		onPath
		done
	)

	state := make(map[string]int, len(nodes))
	broken := make(map[string]bool)

	for _, start := range order {
		if state[start] != unvisited {
			continue
		}

		var path []string
		current := start
		cycle := false
		for {
			if state[current] == onPath {
				cycle = true
				break
			}
			if state[current] == done {
				break
			}
			state[current] = onPath
			path = append(path, current)

			parentID := nodes[current].Record.ParentID
			if _, ok := nodes[parentID]; parentID == "" || !ok {
				break
			}
			current = parentID
		}

		if cycle {
			broken[current] = true
		}

		for _, id := range path {
			state[id] = done
		}
	}

	return broken
}

// Len returns the number of nodes in the forest.
func (f *Forest) Len() int {
	count := 0
	f.Walk(func(*Node, int) bool {
		count++
		return true
	})
	return count
}

// Walk visits every node depth-first, parents before children. Returning
// false from fn skips the node's children.
func (f *Forest) Walk(fn func(node *Node, depth int) bool) {
	for _, root := range f.Roots {
		walk(root, 0, fn)
	}
}

func walk(node *Node, depth int, fn func(*Node, int) bool) {
	if !fn(node, depth) {
		return
	}
	for _, child := range node.Children {
		walk(child, depth+1, fn)
	}
}
