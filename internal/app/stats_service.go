package app

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quizhub-service/internal/domain"
)

// StatsService serves average-score aggregates over finished attempts.
// Results are cached with mapping-key tags and recomputed only after an
// attempt reaches a terminal state; in-progress attempts never enter the
// aggregates.
type StatsService struct {
	reader StatsReader
	cache  Cache
	feed   *StatsFeed
	log    *zap.Logger
	ttl    time.Duration
	sf     singleflight.Group
}

func NewStatsService(reader StatsReader, cache Cache, feed *StatsFeed, ttl time.Duration, log *zap.Logger) *StatsService {
	return &StatsService{
		reader: reader,
		cache:  cache,
		feed:   feed,
		log:    log.With(zap.String("service", "stats")),
		ttl:    ttl,
	}
}

// UserCompanyStats aggregates a user's finished attempts on quizzes of one
// company.
func (s *StatsService) UserCompanyStats(ctx context.Context, userID, companyID uuid.UUID) (domain.UserStats, error) {
	key := "stats:user:" + userID.String() + ":company:" + companyID.String()
	tags := []string{UserStatsMappingKey(userID), CompanyStatsMappingKey(companyID)}
	var out domain.UserStats
	err := s.cached(ctx, key, tags, &out, func() (any, error) {
		return s.reader.UserStats(ctx, userID, &companyID)
	})
	return out, err
}

// UserGlobalStats aggregates a user's finished attempts across all companies.
func (s *StatsService) UserGlobalStats(ctx context.Context, userID uuid.UUID) (domain.UserStats, error) {
	key := "stats:user:" + userID.String() + ":global"
	tags := []string{UserStatsMappingKey(userID)}
	var out domain.UserStats
	err := s.cached(ctx, key, tags, &out, func() (any, error) {
		return s.reader.UserStats(ctx, userID, nil)
	})
	return out, err
}

// QuizStats aggregates finished attempts against one quiz version.
func (s *StatsService) QuizStats(ctx context.Context, quizID uuid.UUID) (domain.QuizStats, error) {
	key := "stats:quiz:" + quizID.String()
	tags := []string{QuizStatsMappingKey(quizID)}
	var out domain.QuizStats
	err := s.cached(ctx, key, tags, &out, func() (any, error) {
		return s.reader.QuizStats(ctx, quizID)
	})
	return out, err
}

// cached is the read-through path: cache hit, else singleflight the load,
// store with a jittered TTL and tag under the mapping keys.
func (s *StatsService) cached(ctx context.Context, key string, tags []string, out any, load func() (any, error)) error {
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		value, err := load()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, raw, ttlWithJitter(s.ttl)); err == nil {
			for _, tag := range tags {
				_ = s.cache.Tag(ctx, tag, key)
			}
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(result.([]byte), out)
}

// AttemptFinalized is the explicit post-commit invalidation hook called by
// the attempt engine. It drops every cached view derived from the attempt's
// user, company and quiz, then pushes a fresh quiz aggregate to live
// subscribers.
func (s *StatsService) AttemptFinalized(ctx context.Context, attempt *domain.Attempt) {
	err := s.cache.Invalidate(ctx,
		UserStatsMappingKey(attempt.UserID),
		CompanyStatsMappingKey(attempt.CompanyID),
		QuizStatsMappingKey(attempt.QuizID),
	)
	if err != nil {
		s.log.Warn("stats invalidation failed", zap.Error(err))
	}

	if s.feed == nil || !s.feed.HasSubscribers(attempt.QuizID) {
		return
	}
	stats, err := s.QuizStats(ctx, attempt.QuizID)
	if err != nil {
		s.log.Warn("quiz stats refresh failed",
			zap.String("quiz_id", attempt.QuizID.String()),
			zap.Error(err))
		return
	}
	s.feed.Publish(attempt.QuizID, stats)
}

// Subscribe exposes the live per-quiz stats feed.
func (s *StatsService) Subscribe(quizID uuid.UUID) (<-chan domain.QuizStats, func()) {
	return s.feed.Subscribe(quizID)
}

// ttlWithJitter adds up to 10% to spread expirations.
func ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(rand.Int63n(jitterMax+1))
}

// UserStatsMappingKey tags cached views derived from one user's attempts.
func UserStatsMappingKey(userID uuid.UUID) string {
	return "map:stats:user:" + userID.String()
}

// CompanyStatsMappingKey tags cached views derived from one company's attempts.
func CompanyStatsMappingKey(companyID uuid.UUID) string {
	return "map:stats:company:" + companyID.String()
}

// QuizStatsMappingKey tags cached views derived from one quiz's attempts.
func QuizStatsMappingKey(quizID uuid.UUID) string {
	return "map:stats:quiz:" + quizID.String()
}
