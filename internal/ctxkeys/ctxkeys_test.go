package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithUserID(ctx, "u1")
	ctx = WithExecutionID(ctx, "e1")
	ctx = WithAgentName(ctx, "receipt")
	ctx = WithRequestID(ctx, "r1")

	v, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", v)
	v, _ = ExecutionID(ctx)
	assert.Equal(t, "e1", v)
	v, _ = AgentName(ctx)
	assert.Equal(t, "receipt", v)
	v, _ = RequestID(ctx)
	assert.Equal(t, "r1", v)
}

func TestEmptyValuesAreNotStored(t *testing.T) {
	ctx := WithUserID(context.Background(), "")
	_, ok := UserID(ctx)
	assert.False(t, ok)

	ctx = WithUserID(WithUserID(context.Background(), "a"), "")
	v, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}
