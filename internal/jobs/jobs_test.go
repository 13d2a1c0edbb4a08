package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lingua-api/internal/generation"
	"github.com/phrazzld/lingua-api/internal/task"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEvaluator struct {
	text, topic string
	err         error
}

func (f *fakeEvaluator) EvaluateText(ctx context.Context, text, topic string) (*generation.Evaluation, error) {
	f.text, f.topic = text, topic
	if f.err != nil {
		return nil, f.err
	}
	return &generation.Evaluation{
		Feedback: []generation.Feedback{{Criteria: "grammar", Suggestion: "Use 'go'"}},
		Model:    "fake-model",
	}, nil
}

type fakeSink struct {
	recipient string
	payload   []byte
	err       error
}

func (f *fakeSink) Deliver(ctx context.Context, recipient string, notification []byte) error {
	f.recipient, f.payload = recipient, notification
	return f.err
}

func TestTextEvaluator(t *testing.T) {
	evaluator := &fakeEvaluator{}
	job := NewTextEvaluator(evaluator)

	got, err := job.Evaluate(context.Background(), EvaluatePayload{ResourceID: "r1", Text: "I goes", Topic: "travel"})
	require.NoError(t, err)
	assert.Equal(t, "I goes", evaluator.text)
	assert.Equal(t, "travel", evaluator.topic)
	assert.Equal(t, "r1", got.ResourceID)
	assert.Equal(t, "fake-model", got.Model)
	require.Len(t, got.Feedback, 1)

	_, err = NewTextEvaluator(&fakeEvaluator{err: generation.ErrContentBlocked}).
		Evaluate(context.Background(), EvaluatePayload{Text: "x"})
	assert.ErrorIs(t, err, generation.ErrContentBlocked)

	_, err = NewTextEvaluator(nil).Evaluate(context.Background(), EvaluatePayload{Text: "x"})
	assert.ErrorIs(t, err, ErrEvaluatorUnavailable)
}

func TestNotifier(t *testing.T) {
	fixed := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	t.Run("delivers to sink", func(t *testing.T) {
		sink := &fakeSink{}
		n := NewNotifier(sink, setupTestLogger())
		n.now = func() time.Time { return fixed }

		got, err := n.Send(context.Background(), NotificationPayload{UserID: "u1", Type: "rating", Message: "Updated"})
		require.NoError(t, err)
		assert.Equal(t, fixed, got.CreatedAt)
		assert.NotNil(t, got.Data)

		assert.Equal(t, "u1", sink.recipient)
		var delivered Notification
		require.NoError(t, json.Unmarshal(sink.payload, &delivered))
		assert.Equal(t, "Updated", delivered.Message)
	})

	t.Run("sink failure fails the task", func(t *testing.T) {
		n := NewNotifier(&fakeSink{err: errors.New("redis down")}, setupTestLogger())
		_, err := n.Send(context.Background(), NotificationPayload{UserID: "u1", Type: "t", Message: "m"})
		assert.ErrorContains(t, err, "redis down")
	})

	t.Run("no sink returns the record", func(t *testing.T) {
		n := NewNotifier(nil, setupTestLogger())
		got, err := n.Send(context.Background(), NotificationPayload{UserID: "u1", Type: "t", Message: "m"})
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
	})
}

func TestRegister(t *testing.T) {
	reg := task.NewRegistry(setupTestLogger())
	Register(reg, Dependencies{Logger: setupTestLogger()})

	assert.Equal(t, []string{CalculateRatingTask, EvaluateTextTask, SendNotificationTask}, reg.Names())

	tests := []struct {
		task    string
		payload string
		valid   bool
	}{
		{CalculateRatingTask, `{"resource_id":"r1","impressions":3}`, true},
		{CalculateRatingTask, `{"impressions":3}`, false},
		{CalculateRatingTask, `{"resource_id":"r1","tutor_ratings":[7]}`, false},
		{EvaluateTextTask, `{"text":"hola"}`, true},
		{EvaluateTextTask, `{"topic":"x"}`, false},
		{SendNotificationTask, `{"user_id":"u","type":"t","message":"m"}`, true},
		{SendNotificationTask, `{"user_id":"u"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.task+" "+tt.payload, func(t *testing.T) {
			h, err := reg.Resolve(tt.task)
			require.NoError(t, err)

			err = h.Validate(json.RawMessage(tt.payload))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, task.ErrInvalidPayload)
			}
		})
	}
}

func TestRegister_RunsThroughHandler(t *testing.T) {
	reg := task.NewRegistry(setupTestLogger())
	Register(reg, Dependencies{})

	h, err := reg.Resolve(CalculateRatingTask)
	require.NoError(t, err)

	out, err := h.Invoke(context.Background(), json.RawMessage(`{"resource_id":"r2","impressions":50,"tutor_ratings":[4,5]}`))
	require.NoError(t, err)

	var result RatingResult
	require.NoError(t, json.Unmarshal(out, &result))
	assert.InDelta(t, 4.3, result.Rating, 1e-9)
}
