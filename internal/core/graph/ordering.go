package graph

// =============================================================================
// Resource Ordering Functions
// =============================================================================

// Levels groups resources into waves using Kahn's algorithm. Every resource
// in a wave depends only on resources in earlier waves, so the members of one
// wave can be realized concurrently. A parent counts as a dependency.
//
// Within a wave, resources keep their insertion order.
//
// Example:
//
//	// cluster ← lb ← listener, cluster ← image
//	g.Levels() // [[cluster], [lb, image], [listener]]
func (g *Graph) Levels() [][]Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.resources) == 0 {
		return nil
	}

	inDegree := make(map[string]int, len(g.resources))
	dependents := make(map[string][]string)
	for _, r := range g.resources {
		id := r.ID()
		deps := requirements(r)
		inDegree[id] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var current []string
	for _, r := range g.resources {
		if inDegree[r.ID()] == 0 {
			current = append(current, r.ID())
		}
	}

	var levels [][]Resource
	for len(current) > 0 {
		wave := make([]Resource, 0, len(current))
		ready := make(map[string]bool)
		for _, id := range current {
			wave = append(wave, g.resources[g.index[id]])
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					ready[dep] = true
				}
			}
		}
		levels = append(levels, wave)

		current = current[:0:0]
		for _, r := range g.resources {
			if ready[r.ID()] {
				current = append(current, r.ID())
			}
		}
	}
	return levels
}

// requirements returns the distinct IDs r waits for.
func requirements(r Resource) []string {
	seen := make(map[string]bool, len(r.DependsOn)+1)
	var out []string
	if r.Parent != "" {
		seen[r.Parent] = true
		out = append(out, r.Parent)
	}
	for _, dep := range r.DependsOn {
		if !seen[dep] {
			seen[dep] = true
			out = append(out, dep)
		}
	}
	return out
}
