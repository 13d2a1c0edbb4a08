package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRating(t *testing.T) {
	tests := []struct {
		name    string
		payload RatingPayload
		want    float64
		tutor   float64
	}{
		{"no engagement uses neutral tutor rating", RatingPayload{ResourceID: "r1"}, 1.2, 3.0},
		{"blended signals", RatingPayload{ResourceID: "r2", Impressions: 50, TutorRatings: []float64{4, 5}}, 4.3, 4.5},
		{"capped at five", RatingPayload{ResourceID: "r3", Impressions: 1000, TutorRatings: []float64{5}}, 5.0, 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateRating(context.Background(), tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.payload.ResourceID, got.ResourceID)
			assert.InDelta(t, tt.want, got.Rating, 1e-9)
			assert.InDelta(t, tt.tutor, got.Components.TutorRating, 1e-9)
			assert.LessOrEqual(t, got.Rating, maxRating)
		})
	}
}

func TestCalculateRating_ComponentScaling(t *testing.T) {
	got, err := CalculateRating(context.Background(), RatingPayload{ResourceID: "r", Impressions: 40})
	require.NoError(t, err)

	assert.InDelta(t, 4.0, got.Components.RecentPickups, 1e-9)
	assert.InDelta(t, 2.0, got.Components.Impressions, 1e-9)
}
