package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributes(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("points.category", "achievement"),
		attribute.String("user_id", "user-1"),
		attribute.Int64("points.credited", 5),
	)
	assert.Len(t, attrs, 2)
}

func TestSafeError(t *testing.T) {
	root := errors.New("storage_unavailable")
	wrapped := fmt.Errorf("earn: %w", fmt.Errorf("commit: %w", root))

	assert.EqualError(t, SafeError(wrapped), "storage_unavailable")
	assert.Nil(t, SafeError(nil))
}

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: false, ServiceName: "edupoints"}, nil)
	assert.NoError(t, err)
	assert.NotNil(t, provider)
}
