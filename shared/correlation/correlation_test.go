package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_DefaultsToRoot(t *testing.T) {
	assert.Equal(t, DefaultID, ID(context.Background()))

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestWithID(t *testing.T) {
	ctx := WithID(context.Background(), "abc-123")

	assert.Equal(t, "abc-123", ID(ctx))
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "abc-123", id)
}

func TestWithID_EmptyKeepsParent(t *testing.T) {
	parent := WithID(context.Background(), "parent")
	ctx := WithID(parent, "")

	assert.Equal(t, "parent", ID(ctx))
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()

	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
