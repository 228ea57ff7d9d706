package domain

import "time"

// Review rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is embedded in its product and has no identity of its own.
type Review struct {
	Name      string    `json:"name" bson:"name"`
	Rating    int       `json:"rating" bson:"rating"`
	Comment   string    `json:"comment" bson:"comment"`
	User      string    `json:"user" bson:"user"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// RecomputeAggregate derives rating and review count from reviews. The
// rating of a product without reviews is 0.
func RecomputeAggregate(reviews []Review) (rating float64, numReviews int) {
	numReviews = len(reviews)
	if numReviews == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(numReviews), numReviews
}

// HasReviewFrom reports whether userID already reviewed p.
func (p *Product) HasReviewFrom(userID string) bool {
	for _, r := range p.Reviews {
		if r.User == userID {
			return true
		}
	}
	return false
}

// AppendReview adds r and refreshes the aggregate. Callers check
// HasReviewFrom first.
func (p *Product) AppendReview(r Review) {
	p.Reviews = append(p.Reviews, r)
	p.Rating, p.NumReviews = RecomputeAggregate(p.Reviews)
}
