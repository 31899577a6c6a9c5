// Package domain holds the records microplan keeps about composed services.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/microplan/internal/core/cluster"
)

// =============================================================================
// Plan Errors
// =============================================================================

var (
	ErrServiceRequired     = errors.New("service name is required")
	ErrClusterNameRequired = errors.New("cluster name is required")
	ErrInvalidTransition   = errors.New("invalid plan status transition")
)

// =============================================================================
// Plan Status
// =============================================================================

type PlanStatus string

const (
	PlanStatusPlanned PlanStatus = "planned"
	PlanStatusApplied PlanStatus = "applied"
	PlanStatusFailed  PlanStatus = "failed"
)

// validPlanTransitions lists the statuses reachable from each status.
// A failed plan may be applied again.
var validPlanTransitions = map[PlanStatus][]PlanStatus{
	PlanStatusPlanned: {PlanStatusApplied, PlanStatusFailed},
	PlanStatusFailed:  {PlanStatusApplied, PlanStatusFailed},
	PlanStatusApplied: {},
}

// CanTransitionTo reports whether s may move to target.
func (s PlanStatus) CanTransitionTo(target PlanStatus) bool {
	for _, t := range validPlanTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// =============================================================================
// Plan
// =============================================================================

// PlanResource is one logical resource recorded by a backend.
type PlanResource struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	DependsOn  []string `json:"depends_on,omitempty"`
	PhysicalID string   `json:"physical_id,omitempty"`
}

// PlanEndpoint is one externally reachable port of a composed service.
// URL is empty until the plan has been applied.
type PlanEndpoint struct {
	Container string `json:"container"`
	Port      int    `json:"port"`
	URL       string `json:"url,omitempty"`
}

// Plan records one composition of a service onto a cluster.
type Plan struct {
	ID           string         `json:"id"`
	Service      string         `json:"service"`
	ClusterKind  cluster.Kind   `json:"cluster_kind"`
	ClusterName  string         `json:"cluster_name"`
	Replicas     int            `json:"replicas"`
	Status       PlanStatus     `json:"status"`
	Resources    []PlanResource `json:"resources"`
	Endpoints    []PlanEndpoint `json:"endpoints"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewPlan creates a plan in the planned status.
func NewPlan(service string, kind cluster.Kind, clusterName string, replicas int) (*Plan, error) {
	if service == "" {
		return nil, ErrServiceRequired
	}
	if clusterName == "" {
		return nil, ErrClusterNameRequired
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", cluster.ErrUnknownKind, kind)
	}

	now := time.Now().UTC()
	return &Plan{
		ID:          uuid.New().String(),
		Service:     service,
		ClusterKind: kind,
		ClusterName: clusterName,
		Replicas:    replicas,
		Status:      PlanStatusPlanned,
		Resources:   []PlanResource{},
		Endpoints:   []PlanEndpoint{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MarkApplied records a successful apply and the resolved endpoint URLs,
// given in endpoint order.
func (p *Plan) MarkApplied(urls []string, physical map[string]string) error {
	if !p.Status.CanTransitionTo(PlanStatusApplied) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, PlanStatusApplied)
	}
	if len(urls) != len(p.Endpoints) {
		return fmt.Errorf("expected %d endpoint URLs, got %d", len(p.Endpoints), len(urls))
	}
	for i := range p.Endpoints {
		p.Endpoints[i].URL = urls[i]
	}
	p.setPhysical(physical)
	p.Status = PlanStatusApplied
	p.ErrorMessage = ""
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed records a failed apply.
func (p *Plan) MarkFailed(cause error, physical map[string]string) error {
	if !p.Status.CanTransitionTo(PlanStatusFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, PlanStatusFailed)
	}
	p.setPhysical(physical)
	p.Status = PlanStatusFailed
	if cause != nil {
		p.ErrorMessage = cause.Error()
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (p *Plan) setPhysical(physical map[string]string) {
	for i, r := range p.Resources {
		if id, ok := physical[r.ID]; ok {
			p.Resources[i].PhysicalID = id
		}
	}
}
