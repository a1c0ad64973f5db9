package provisioner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStatusCodes(t *testing.T) {
	codes := DefaultStatusCodes()

	assert.Equal(t, Status(1), codes.Eligible)
	assert.Equal(t, Status(4), codes.Completed)
	assert.Equal(t, Status(5), codes.Failed)
}

func TestStatusCodes_Terminal(t *testing.T) {
	codes := StatusCodes{Eligible: 10, Completed: 20, Failed: 30}

	t.Run("success maps to completed", func(t *testing.T) {
		assert.Equal(t, Status(20), codes.Terminal(true))
	})

	t.Run("failure maps to failed", func(t *testing.T) {
		assert.Equal(t, Status(30), codes.Terminal(false))
	})
}

func TestWorkItem_IsEligible(t *testing.T) {
	codes := DefaultStatusCodes()

	t.Run("active and eligible", func(t *testing.T) {
		item := WorkItem{Active: true, Status: codes.Eligible}
		assert.True(t, item.IsEligible(codes))
	})

	t.Run("inactive", func(t *testing.T) {
		item := WorkItem{Active: false, Status: codes.Eligible}
		assert.False(t, item.IsEligible(codes))
	})

	t.Run("already completed", func(t *testing.T) {
		item := WorkItem{Active: true, Status: codes.Completed}
		assert.False(t, item.IsEligible(codes))
	})

	t.Run("zero value", func(t *testing.T) {
		var item WorkItem
		assert.False(t, item.IsEligible(codes))
	})
}

func TestWorkItemFilter_Matches(t *testing.T) {
	codes := DefaultStatusCodes()
	filter := EligibleFilter(codes)

	assert.True(t, filter.Matches(WorkItem{Active: true, Status: codes.Eligible}))
	assert.False(t, filter.Matches(WorkItem{Active: false, Status: codes.Eligible}))
	assert.False(t, filter.Matches(WorkItem{Active: true, Status: codes.Failed}))
	assert.True(t, WorkItemFilter{}.Matches(WorkItem{Status: codes.Failed}))
}

func TestOutcome_Constructors(t *testing.T) {
	t.Run("skipped", func(t *testing.T) {
		o := Skipped("no script configured")
		assert.Equal(t, OutcomeSkipped, o.State)
		assert.Equal(t, "no script configured", o.Reason)
		assert.NoError(t, o.Err)
	})

	t.Run("succeeded", func(t *testing.T) {
		o := Succeeded(3)
		assert.Equal(t, OutcomeSucceeded, o.State)
		assert.Equal(t, 3, o.Batches)
	})

	t.Run("failed", func(t *testing.T) {
		err := errors.New("boom")
		o := Failed(err)
		assert.Equal(t, OutcomeFailed, o.State)
		assert.ErrorIs(t, o.Err, err)
	})
}

func TestOutcomeState_String(t *testing.T) {
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "succeeded", OutcomeSucceeded.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "unknown", OutcomeState(42).String())
}

func TestSlogLogger_WritesRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx := context.Background()

	logger.Debug(ctx, "debug message", "k", 1)
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message", "error", "boom")

	out := buf.String()
	assert.Contains(t, out, `"msg":"debug message"`)
	assert.Contains(t, out, `"k":1`)
	assert.Contains(t, out, `"level":"INFO"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestNewSlogLogger_NilUsesDefault(t *testing.T) {
	logger := NewSlogLogger(nil)

	assert.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.Info(context.Background(), "hello")
	})
}
