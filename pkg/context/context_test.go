package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, Fields(ctx))

	ctx = SetRequestID(ctx, "req-1")
	ctx = SetMethod(ctx, "POST")
	ctx = SetRoute(ctx, "/api/v1/duplicates/merge")
	ctx = SetRemoteIP(ctx, "10.0.0.1")
	ctx = SetReferer(ctx, "https://cases.example")
	ctx = SetOperatorID(ctx, "worker-7")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "POST", GetMethod(ctx))
	assert.Equal(t, "/api/v1/duplicates/merge", GetRoute(ctx))
	assert.Equal(t, "10.0.0.1", GetRemoteIP(ctx))
	assert.Equal(t, "https://cases.example", GetReferer(ctx))
	assert.Equal(t, "worker-7", GetOperatorID(ctx))

	assert.Equal(t, map[string]any{
		"request_id":  "req-1",
		"method":      "POST",
		"route":       "/api/v1/duplicates/merge",
		"operator_id": "worker-7",
	}, Fields(ctx))
}
