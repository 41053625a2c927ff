package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
	"golang.org/x/time/rate"
)

// SearchLimit is the number of catalog results requested per search.
const SearchLimit = 5

// Catalog searches a provider's track catalog.
type Catalog interface {
	// Provider returns the key of the service searched.
	Provider() models.ProviderKey

	// Search returns up to [SearchLimit] tracks matching query, each carrying this provider's reference.
	Search(ctx context.Context, query string) ([]models.UniversalTrack, error)
}

// NewLimiter builds a limiter allowing perSecond requests with a burst of one.
// A non-positive rate disables throttling.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func validateQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	return query, nil
}

// orUnknown substitutes "Unknown" for blank catalog fields.
func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
