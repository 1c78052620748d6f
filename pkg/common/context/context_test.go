package context

import (
	"context"
	"testing"
	"time"
)

func TestWithTimeoutOrCancel(t *testing.T) {
	t.Run("timeout elapses", func(t *testing.T) {
		ctx, cancel := WithTimeoutOrCancel(context.Background(), time.Millisecond)
		defer cancel()

		<-ctx.Done()
		if !IsTimedOut(ctx) {
			t.Errorf("expected deadline exceeded, got %v", ctx.Err())
		}
	})

	t.Run("zero timeout has no deadline", func(t *testing.T) {
		ctx, cancel := WithTimeoutOrCancel(context.Background(), 0)
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline")
		}
		if IsCanceled(ctx) {
			t.Error("context should not be canceled yet")
		}
		cancel()
		if !IsCanceled(ctx) {
			t.Error("context should be canceled")
		}
		if IsTimedOut(ctx) {
			t.Error("cancellation is not a timeout")
		}
	})
}
