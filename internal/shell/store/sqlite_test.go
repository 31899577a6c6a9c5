package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/microplan/internal/core/cluster"
	"github.com/artpar/microplan/internal/core/domain"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func createTestPlan(t *testing.T, store Store, service string) *domain.Plan {
	t.Helper()
	plan, err := domain.NewPlan(service, cluster.KindAwsEcs, "prod", 2)
	require.NoError(t, err)
	plan.Resources = []domain.PlanResource{
		{ID: "prod", Type: "ecs:cluster"},
		{ID: service + "-img", Type: "ecr:image"},
		{ID: "prod/" + service + "-svc", Type: "ecs:service", DependsOn: []string{service + "-img"}},
	}
	plan.Endpoints = []domain.PlanEndpoint{{Container: service, Port: 80}}

	require.NoError(t, store.SavePlan(context.Background(), plan))
	return plan
}

// =============================================================================
// Plan Tests
// =============================================================================

func TestSavePlan_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	plan := createTestPlan(t, store, "nginx")

	got, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)

	assert.Equal(t, plan.ID, got.ID)
	assert.Equal(t, "nginx", got.Service)
	assert.Equal(t, cluster.KindAwsEcs, got.ClusterKind)
	assert.Equal(t, "prod", got.ClusterName)
	assert.Equal(t, 2, got.Replicas)
	assert.Equal(t, domain.PlanStatusPlanned, got.Status)
	assert.Equal(t, plan.Resources, got.Resources)
	assert.Equal(t, plan.Endpoints, got.Endpoints)
	assert.True(t, plan.CreatedAt.Equal(got.CreatedAt))
}

func TestSavePlan_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	plan := createTestPlan(t, store, "nginx")

	err := store.SavePlan(context.Background(), plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID))
}

func TestGetPlan_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetPlan(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "GetPlan", storeErr.Op)
	assert.Equal(t, "missing", storeErr.ID)
}

func TestUpdatePlan_Applied(t *testing.T) {
	store := setupTestStore(t)
	plan := createTestPlan(t, store, "nginx")

	require.NoError(t, plan.MarkApplied(
		[]string{"http://nginx-lb.elb.amazonaws.com:80"},
		map[string]string{"prod/nginx-svc": "arn:aws:ecs:service/nginx-svc"},
	))
	require.NoError(t, store.UpdatePlan(context.Background(), plan))

	got, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStatusApplied, got.Status)
	assert.Equal(t, "http://nginx-lb.elb.amazonaws.com:80", got.Endpoints[0].URL)
	assert.Equal(t, "arn:aws:ecs:service/nginx-svc", got.Resources[2].PhysicalID)
}

func TestUpdatePlan_NotFound(t *testing.T) {
	store := setupTestStore(t)
	plan, err := domain.NewPlan("nginx", cluster.KindAwsEcs, "prod", 1)
	require.NoError(t, err)

	err = store.UpdatePlan(context.Background(), plan)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeletePlan(t *testing.T) {
	store := setupTestStore(t)
	plan := createTestPlan(t, store, "nginx")

	require.NoError(t, store.DeletePlan(context.Background(), plan.ID))

	_, err := store.GetPlan(context.Background(), plan.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = store.DeletePlan(context.Background(), plan.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListPlans(t *testing.T) {
	store := setupTestStore(t)
	first := createTestPlan(t, store, "nginx")
	time.Sleep(time.Millisecond)
	createTestPlan(t, store, "api")
	time.Sleep(time.Millisecond)
	latest := createTestPlan(t, store, "nginx")

	all, err := store.ListPlans(context.Background(), "", DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	nginx, err := store.ListPlans(context.Background(), "nginx", DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, nginx, 2)
	assert.Equal(t, latest.ID, nginx[0].ID)
	assert.Equal(t, first.ID, nginx[1].ID)

	page, err := store.ListPlans(context.Background(), "", ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "api", page[0].Service)
}

func TestListPlans_Empty(t *testing.T) {
	store := setupTestStore(t)

	plans, err := store.ListPlans(context.Background(), "nginx", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestListOptions_Normalize(t *testing.T) {
	assert.Equal(t, ListOptions{Limit: 100, Offset: 0}, ListOptions{Limit: 0, Offset: -5}.Normalize())
	assert.Equal(t, ListOptions{Limit: 1000, Offset: 3}, ListOptions{Limit: 5000, Offset: 3}.Normalize())
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_Commit(t *testing.T) {
	store := setupTestStore(t)
	plan, err := domain.NewPlan("nginx", cluster.KindAwsEcs, "prod", 1)
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(tx Store) error {
		return tx.SavePlan(context.Background(), plan)
	})
	require.NoError(t, err)

	_, err = store.GetPlan(context.Background(), plan.ID)
	assert.NoError(t, err)
}

func TestWithTx_Rollback(t *testing.T) {
	store := setupTestStore(t)
	plan, err := domain.NewPlan("nginx", cluster.KindAwsEcs, "prod", 1)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(context.Background(), func(tx Store) error {
		require.NoError(t, tx.SavePlan(context.Background(), plan))
		return boom
	})
	assert.Same(t, boom, err)

	_, err = store.GetPlan(context.Background(), plan.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}
