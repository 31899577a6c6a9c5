package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
	}{
		{"AwsEcs", KindAwsEcs},
		{"awsecs", KindAwsEcs},
		{"aws-ecs", KindAwsEcs},
		{" ecs ", KindAwsEcs},
		{"Kubernetes", KindKubernetes},
		{"k8s", KindKubernetes},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, err := ParseKind(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestParseKind_Unknown(t *testing.T) {
	_, err := ParseKind("nomad")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Contains(t, err.Error(), "nomad")
}

func TestKind_Valid(t *testing.T) {
	assert.True(t, KindAwsEcs.Valid())
	assert.True(t, KindKubernetes.Valid())
	assert.False(t, Kind("Swarm").Valid())
	assert.False(t, Kind("").Valid())
}

func TestKinds_DeclarationOrder(t *testing.T) {
	assert.Equal(t, []Kind{KindAwsEcs, KindKubernetes}, Kinds())
}
