// Package recommend maps a free-text mood to a shortlist of bookable
// services. Results are cached in Redis when a client is configured; without
// one every request is computed fresh.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"recpay/internal/catalog"
	"recpay/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrEmptyMood = errors.New("mood is required")

// Recommendation is the suggestion set for one mood.
type Recommendation struct {
	Mood     string           `json:"mood"`
	Message  string           `json:"message"`
	Services []models.Service `json:"services"`
	Cached   bool             `json:"cached,omitempty"`
}

// moodGroup ties mood keywords to service categories and a caption.
type moodGroup struct {
	keywords   []string
	categories []string
	message    string
}

var moodGroups = []moodGroup{
	{
		keywords:   []string{"energetic", "active", "pumped", "sporty", "competitive"},
		categories: []string{"Sports", "Fitness"},
		message:    "You sound ready to move. Burn some of that energy:",
	},
	{
		keywords:   []string{"stressed", "tired", "exhausted", "relaxed", "calm", "chill", "unwind"},
		categories: []string{"Wellness"},
		message:    "Time to slow down. These should help you unwind:",
	},
	{
		keywords:   []string{"social", "fun", "bored", "friends"},
		categories: []string{"Entertainment", "Sports"},
		message:    "Something to shake the day up:",
	},
	{
		keywords:   []string{"adventurous", "outdoors", "explore"},
		categories: []string{"Adventure", "Sports"},
		message:    "Feeling bold? Try one of these:",
	},
}

const fallbackMessage = "Here is what we have on offer today:"

type Recommender struct {
	catalog *catalog.Catalog
	cache   *redis.Client
	ttl     time.Duration
	logger  zerolog.Logger
}

// New builds a recommender. The cache client may be nil, in which case
// caching is disabled.
func New(cat *catalog.Catalog, cache *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Recommender {
	return &Recommender{
		catalog: cat,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With().Str("component", "recommend").Logger(),
	}
}

// Recommend resolves a mood to services. Cache failures degrade to a fresh
// computation, never to an error.
func (r *Recommender) Recommend(ctx context.Context, mood string) (Recommendation, error) {
	normalized := strings.ToLower(strings.Join(strings.Fields(mood), " "))
	if normalized == "" {
		return Recommendation{}, ErrEmptyMood
	}

	if cached, ok := r.fromCache(ctx, normalized); ok {
		cached.Cached = true
		return cached, nil
	}

	rec := r.compute(normalized)
	r.toCache(ctx, normalized, rec)
	return rec, nil
}

func (r *Recommender) compute(mood string) Recommendation {
	for _, group := range moodGroups {
		if !matchesAny(mood, group.keywords) {
			continue
		}

		var services []models.Service
		for _, category := range group.categories {
			services = append(services, r.catalog.ByCategory(category)...)
		}
		if len(services) > 0 {
			return Recommendation{Mood: mood, Message: group.message, Services: services}
		}
	}

	// No keyword hit, or the matched categories are empty: fall back to the
	// full available catalog.
	var services []models.Service
	for _, svc := range r.catalog.List() {
		if svc.Available {
			services = append(services, svc)
		}
	}
	return Recommendation{Mood: mood, Message: fallbackMessage, Services: services}
}

func matchesAny(mood string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(mood, kw) {
			return true
		}
	}
	return false
}

func cacheKey(mood string) string {
	return fmt.Sprintf("recommend:%s", mood)
}

func (r *Recommender) fromCache(ctx context.Context, mood string) (Recommendation, bool) {
	if r.cache == nil {
		return Recommendation{}, false
	}

	val, err := r.cache.Get(ctx, cacheKey(mood)).Result()
	if err == redis.Nil {
		return Recommendation{}, false
	}
	if err != nil {
		r.logger.Warn().Err(err).Msg("recommendation cache read failed")
		return Recommendation{}, false
	}

	var rec Recommendation
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Recommendation{}, false
	}
	return rec, true
}

func (r *Recommender) toCache(ctx context.Context, mood string, rec Recommendation) {
	if r.cache == nil {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(mood), data, r.ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Msg("recommendation cache write failed")
	}
}
