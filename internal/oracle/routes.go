package oracle

import "vrpspd/internal/model"

// decodeRoutes follows the chosen arcs from the depot. Each depot successor
// starts one route; a walk stops at the depot or at a repeated node.
func decodeRoutes(succ map[int][]int) [][]int {
	next := make(map[int]int)
	for from, tos := range succ {
		if from != model.Depot && len(tos) > 0 {
			next[from] = tos[0]
		}
	}
	var routes [][]int
	for _, first := range succ[model.Depot] {
		seen := map[int]bool{}
		var route []int
		for v := first; v != model.Depot && !seen[v]; {
			seen[v] = true
			route = append(route, v)
			nv, ok := next[v]
			if !ok {
				break
			}
			v = nv
		}
		routes = append(routes, route)
	}
	return routes
}
