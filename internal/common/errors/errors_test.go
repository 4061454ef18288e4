package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_Retryability(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")

	tests := []struct {
		name      string
		err       *StandardError
		code      ErrorCode
		retryable bool
	}{
		{"invalid recipient", NewInvalidRecipientError("no keys"), ErrCodeInvalidRecipient, false},
		{"invalid event", NewInvalidEventError("jobId required"), ErrCodeInvalidEvent, false},
		{"dedup", NewDedupUnavailableError(cause), ErrCodeDedupUnavailable, true},
		{"rate", NewRateLimiterUnavailableError(cause), ErrCodeRateLimiterUnavailable, true},
		{"delivery", NewDeliveryFailedError("banner", cause), ErrCodeDeliveryFailed, false},
		{"audit", NewAuditWriteFailedError(cause), ErrCodeAuditWriteFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestDeadlineIsReportedAsStageTimeout(t *testing.T) {
	err := NewDedupUnavailableError(fmt.Errorf("redis: %w", context.DeadlineExceeded))

	assert.Equal(t, StageTimeout, err.Details)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCodeOf_UnwrapsChain(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", NewRateLimiterUnavailableError(fmt.Errorf("boom")))

	assert.Equal(t, ErrCodeRateLimiterUnavailable, CodeOf(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestConvertToBPMNError(t *testing.T) {
	t.Run("retryable keeps retry count", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewDedupUnavailableError(fmt.Errorf("down")))

		assert.Equal(t, "NOTIFICATION_DEDUP_UNAVAILABLE", bpmn.Code)
		assert.Equal(t, 3, bpmn.Retries)
		assert.True(t, bpmn.Retryable)
	})

	t.Run("non retryable has zero retries and carries metadata", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewDeliveryFailedError("modal", fmt.Errorf("sns throttled")))

		assert.Equal(t, "NOTIFICATION_DELIVERY_FAILED", bpmn.Code)
		assert.Equal(t, 0, bpmn.Retries)
		vars := bpmn.ToErrorVariables()
		require.Contains(t, vars, "channel")
		assert.Equal(t, "modal", vars["channel"])
		assert.Equal(t, "DELIVERY_FAILED", vars["originalErrorCode"])
	})

	t.Run("unknown code falls back to its own name", func(t *testing.T) {
		bpmn := ConvertToBPMNError(&StandardError{Code: "SOMETHING_ELSE"})
		assert.Equal(t, "SOMETHING_ELSE", bpmn.Code)
	})
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidEvent))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodePayloadSchemaInvalid))
	assert.Equal(t, "STORAGE", GetErrorCategory(ErrCodeDedupUnavailable))
	assert.Equal(t, "TRANSPORT", GetErrorCategory(ErrCodeDeliveryFailed))
	assert.Equal(t, "AUDIT", GetErrorCategory(ErrCodeAuditWriteFailed))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
