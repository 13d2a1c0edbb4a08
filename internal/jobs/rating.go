package jobs

import (
	"context"
	"math"
)

// Rating weights and scaling.
const (
	pickupsWeight     = 0.4
	tutorWeight       = 0.4
	impressionsWeight = 0.2

	maxRating           = 5.0
	defaultTutorRating  = 3.0
	pickupsPerPoint     = 10.0
	impressionsPerPoint = 20.0
)

// RatingPayload carries the engagement figures for one resource.
type RatingPayload struct {
	ResourceID   string    `json:"resource_id" validate:"required"`
	Impressions  int       `json:"impressions" validate:"gte=0"`
	TutorRatings []float64 `json:"tutor_ratings" validate:"dive,gte=0,lte=5"`
}

// RatingComponents are the per-signal scores behind a rating.
type RatingComponents struct {
	RecentPickups float64 `json:"recent_pickups"`
	TutorRating   float64 `json:"tutor_rating"`
	Impressions   float64 `json:"impressions"`
}

// RatingResult is the output of calculate_rating.
type RatingResult struct {
	ResourceID string           `json:"resource_id"`
	Rating     float64          `json:"rating"`
	Components RatingComponents `json:"components"`
}

// CalculateRating computes a resource rating from recent pickups (40%),
// the tutor average (40%) and impressions (20%), rounded to one decimal and
// capped at 5.
func CalculateRating(ctx context.Context, p RatingPayload) (RatingResult, error) {
	components := RatingComponents{
		RecentPickups: math.Min(float64(p.Impressions)/pickupsPerPoint, maxRating),
		TutorRating:   averageOr(p.TutorRatings, defaultTutorRating),
		Impressions:   math.Min(float64(p.Impressions)/impressionsPerPoint, maxRating),
	}

	raw := components.RecentPickups*pickupsWeight +
		components.TutorRating*tutorWeight +
		components.Impressions*impressionsWeight

	return RatingResult{
		ResourceID: p.ResourceID,
		Rating:     math.Min(math.Round(raw*10)/10, maxRating),
		Components: components,
	}, nil
}

func averageOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
