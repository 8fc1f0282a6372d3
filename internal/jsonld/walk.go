package jsonld

// DefaultMaxWalkDepth is the container depth below which Objects stops descending.
const DefaultMaxWalkDepth = 64

type walkItem struct {
	v     Value
	depth int
}

// Objects visits every object reachable from root in pre-order: an object is
// visited before its values, arrays are descended without being visited.
// Containers deeper than maxDepth are skipped and reported through the
// truncated result. Returning false from visit stops the walk.
func Objects(root Value, maxDepth int, visit func(*Map) bool) (truncated bool) {
	stack := []walkItem{{v: root}}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var children []Value
		switch item.v.kind {
		case Object:
			if !visit(item.v.obj) {
				return truncated
			}
			for _, m := range item.v.obj.members {
				children = append(children, m.Value)
			}
		case Array:
			children = item.v.arr
		default:
			continue
		}

		// Push in reverse so the first child is popped first.
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			if c.kind != Object && c.kind != Array {
				continue
			}
			if item.depth+1 > maxDepth {
				truncated = true
				continue
			}
			stack = append(stack, walkItem{v: c, depth: item.depth + 1})
		}
	}
	return truncated
}
