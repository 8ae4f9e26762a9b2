package insights

const (
	layoutColumnWidth = 260.0
	layoutRowHeight    = 80.0
)

// layout assigns (X, Y) to every node with a left-to-right DFS tree
// layout: X is the node's depth column, Y is assigned leaf-to-leaf
// top-to-bottom with each internal node centered over its children
// (spec §4.16 "left-to-right DFS tree layout centered vertically").
func layout(nodes []Node, edges []Edge) {
	byID := make(map[string]*Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}
	children := map[string][]string{}
	hasParent := map[string]bool{}
	for _, e := range edges {
		children[e.Source] = append(children[e.Source], e.Target)
		hasParent[e.Target] = true
	}

	var root string
	for _, n := range nodes {
		if !hasParent[n.ID] {
			root = n.ID
			break
		}
	}
	if root == "" {
		return
	}

	nextY := 0.0
	var assign func(id string, depth int) float64
	assign = func(id string, depth int) float64 {
		n := byID[id]
		n.X = float64(depth) * layoutColumnWidth

		kids := children[id]
		if len(kids) == 0 {
			y := nextY
			nextY += layoutRowHeight
			n.Y = y
			return y
		}

		var sum float64
		for _, k := range kids {
			sum += assign(k, depth+1)
		}
		n.Y = sum / float64(len(kids))
		return n.Y
	}
	assign(root, 0)
}
