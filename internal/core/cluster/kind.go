// Package cluster defines the closed set of backend kinds a cluster can use.
// This is part of the Functional Core - all functions are pure with no I/O.
package cluster

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which backend a cluster instance runs on.
type Kind string

const (
	// KindAwsEcs is the managed container service (ECS on Fargate).
	KindAwsEcs Kind = "AwsEcs"
	// KindKubernetes is declared but has no backend implementation yet.
	KindKubernetes Kind = "Kubernetes"
)

// ErrUnknownKind is returned when a string names no declared kind.
var ErrUnknownKind = errors.New("unknown cluster kind")

// Kinds returns every declared kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindAwsEcs, KindKubernetes}
}

// Valid reports whether k is a declared kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a configuration string to a Kind.
// Matching is case-insensitive and accepts the short aliases "ecs" and "k8s".
//
// Example:
//
//	kind, err := ParseKind("ecs") // KindAwsEcs, nil
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "awsecs", "aws-ecs", "ecs":
		return KindAwsEcs, nil
	case "kubernetes", "k8s":
		return KindKubernetes, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}
