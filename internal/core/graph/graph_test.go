package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(rs []Resource) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID()
	}
	return out
}

// =============================================================================
// Graph Tests
// =============================================================================

func TestResourceID(t *testing.T) {
	assert.Equal(t, "prod", Resource{Name: "prod"}.ID())
	assert.Equal(t, "prod/web-lb", Resource{Name: "web-lb", Parent: "prod"}.ID())
}

func TestGraph_AddAndGet(t *testing.T) {
	g := New()
	clusterID, err := g.Add(Resource{Type: "cluster", Name: "prod"})
	require.NoError(t, err)

	lbID, err := g.Add(Resource{Type: "lb", Name: "web-lb", Parent: clusterID})
	require.NoError(t, err)
	assert.Equal(t, "prod/web-lb", lbID)

	r, ok := g.Get(lbID)
	require.True(t, ok)
	assert.Equal(t, "lb", r.Type)
	assert.Equal(t, 2, g.Len())
}

func TestGraph_DuplicateInSameScope(t *testing.T) {
	g := New()
	_, err := g.Add(Resource{Type: "cluster", Name: "prod"})
	require.NoError(t, err)
	_, err = g.Add(Resource{Type: "lb", Name: "web-lb", Parent: "prod"})
	require.NoError(t, err)

	_, err = g.Add(Resource{Type: "lb", Name: "web-lb", Parent: "prod"})
	assert.ErrorIs(t, err, ErrDuplicateResource)
}

func TestGraph_SameNameDifferentScope(t *testing.T) {
	g := New()
	_, err := g.Add(Resource{Name: "a"})
	require.NoError(t, err)
	_, err = g.Add(Resource{Name: "b"})
	require.NoError(t, err)

	_, err = g.Add(Resource{Name: "x", Parent: "a"})
	require.NoError(t, err)
	_, err = g.Add(Resource{Name: "x", Parent: "b"})
	assert.NoError(t, err)
}

func TestGraph_MissingParentOrDependency(t *testing.T) {
	g := New()
	_, err := g.Add(Resource{Name: "lb", Parent: "nope"})
	assert.ErrorIs(t, err, ErrMissingDependency)

	_, err = g.Add(Resource{Name: "svc", DependsOn: []string{"nope"}})
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Equal(t, 0, g.Len())
}

func TestGraph_ChildrenAndOfType(t *testing.T) {
	g := New()
	_, _ = g.Add(Resource{Type: "cluster", Name: "prod"})
	_, _ = g.Add(Resource{Type: "lb", Name: "a-lb", Parent: "prod"})
	_, _ = g.Add(Resource{Type: "image", Name: "a-img", Parent: "prod"})
	_, _ = g.Add(Resource{Type: "lb", Name: "b-lb", Parent: "prod"})

	assert.Equal(t, []string{"prod/a-lb", "prod/a-img", "prod/b-lb"}, ids(g.Children("prod")))
	assert.Equal(t, []string{"prod/a-lb", "prod/b-lb"}, ids(g.OfType("lb")))
}

func TestGraph_ConcurrentAdds(t *testing.T) {
	g := New()
	_, err := g.Add(Resource{Name: "prod"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := g.Add(Resource{Name: name, Parent: "prod"})
			assert.NoError(t, err)
		}(name)
	}
	wg.Wait()
	assert.Equal(t, 6, g.Len())
}

// =============================================================================
// Ordering Tests
// =============================================================================

func TestLevels_Empty(t *testing.T) {
	assert.Nil(t, New().Levels())
}

func TestLevels_Waves(t *testing.T) {
	g := New()
	_, _ = g.Add(Resource{Name: "prod"})
	_, _ = g.Add(Resource{Name: "web-lb", Parent: "prod"})
	_, _ = g.Add(Resource{Name: "web-img", Parent: "prod"})
	_, _ = g.Add(Resource{Name: "web-lb-80", Parent: "prod", DependsOn: []string{"prod/web-lb"}})
	_, _ = g.Add(Resource{Name: "web-svc", Parent: "prod", DependsOn: []string{"prod/web-img", "prod/web-lb-80"}})

	levels := g.Levels()
	require.Len(t, levels, 4)
	assert.Equal(t, []string{"prod"}, ids(levels[0]))
	assert.Equal(t, []string{"prod/web-lb", "prod/web-img"}, ids(levels[1]))
	assert.Equal(t, []string{"prod/web-lb-80"}, ids(levels[2]))
	assert.Equal(t, []string{"prod/web-svc"}, ids(levels[3]))
}

func TestLevels_ParentAlsoListedAsDependency(t *testing.T) {
	g := New()
	_, _ = g.Add(Resource{Name: "prod"})
	_, _ = g.Add(Resource{Name: "lb", Parent: "prod", DependsOn: []string{"prod", "prod"}})

	levels := g.Levels()
	require.Len(t, levels, 2)
	assert.Equal(t, []string{"prod/lb"}, ids(levels[1]))
}

func TestLevels_IndependentRoots(t *testing.T) {
	g := New()
	_, _ = g.Add(Resource{Name: "b"})
	_, _ = g.Add(Resource{Name: "a"})

	levels := g.Levels()
	require.Len(t, levels, 1)
	assert.Equal(t, []string{"b", "a"}, ids(levels[0]))
}
