package services

import (
	"context"
	"errors"

	"github.com/cinequiz/apiserver/internal/logging"
	"github.com/cinequiz/apiserver/internal/metrics"
	"github.com/cinequiz/apiserver/internal/mq"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/cinequiz/apiserver/types"
	"go.uber.org/zap"
)

// ProgressRepository applies a mutation to a user under a row lock.
type ProgressRepository interface {
	UpdateProgress(ctx context.Context, id int64, mutate func(*types.User) error) (types.User, error)
}

// ProgressionService awards points and records finished games.
type ProgressionService struct {
	repo   ProgressRepository
	logger *zap.Logger
}

func NewProgressionService(repo ProgressRepository, logger *zap.Logger) *ProgressionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressionService{
		repo:   repo,
		logger: logging.WithComponent(logger, "progression"),
	}
}

// AwardPoints adds delta to the user's total and returns the updated user.
func (s *ProgressionService) AwardPoints(ctx context.Context, userID int64, delta int) (types.User, error) {
	if delta < 0 {
		return types.User{}, ErrNegativePoints
	}

	before := types.RankNewbie
	user, err := s.repo.UpdateProgress(ctx, userID, func(u *types.User) error {
		before = u.Rank
		u.AwardPoints(delta)
		return nil
	})
	if err != nil {
		return types.User{}, err
	}

	metrics.PointsAwardedTotal.Add(float64(delta))
	s.logRankChange(user, before)
	return user, nil
}

// RecordGameResult bumps the play counter for the result's kind, adds new
// badges and awards the points, all in one update.
func (s *ProgressionService) RecordGameResult(ctx context.Context, result types.GameResult) (types.User, error) {
	if result.UserID < 1 || !result.Kind.Valid() {
		return types.User{}, ErrInvalidGameResult
	}
	if result.Points < 0 {
		return types.User{}, ErrNegativePoints
	}

	before := types.RankNewbie
	user, err := s.repo.UpdateProgress(ctx, result.UserID, func(u *types.User) error {
		before = u.Rank
		switch result.Kind {
		case types.GameKindQuiz:
			u.QuizzesCompleted++
		default:
			u.GamesPlayed++
		}
		u.AddBadges(result.Badges...)
		u.AwardPoints(result.Points)
		return nil
	})
	if err != nil {
		return types.User{}, err
	}

	metrics.PointsAwardedTotal.Add(float64(result.Points))
	s.logRankChange(user, before)
	return user, nil
}

// HandleGameResult is the queue handler for game results. Messages that can
// never succeed are dead-lettered; store failures are returned as is so the
// broker redelivers.
func (s *ProgressionService) HandleGameResult(ctx context.Context, msg mq.Message) error {
	result, err := mq.DecodeGameResult(msg)
	if err != nil {
		s.logger.Warn("dead-lettering malformed game result", zap.String("message_id", msg.ID), zap.Error(err))
		metrics.GameResultsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return mq.DeadLetter(err)
	}

	if _, err := s.RecordGameResult(ctx, result); err != nil {
		if errors.Is(err, store.ErrNotFound) || KindOf(err) == KindValidation {
			s.logger.Warn("dead-lettering game result",
				zap.String("message_id", msg.ID),
				zap.Int64("user_id", result.UserID),
				zap.Error(err),
			)
			metrics.GameResultsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
			return mq.DeadLetter(err)
		}
		logging.Error(s.logger, "failed to record game result", err,
			zap.String("message_id", msg.ID),
			zap.Int64("user_id", result.UserID),
		)
		metrics.GameResultsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return err
	}

	metrics.GameResultsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return nil
}

func (s *ProgressionService) logRankChange(user types.User, before types.Rank) {
	if user.Rank == before {
		return
	}
	s.logger.Info("rank changed",
		zap.Int64("user_id", user.ID),
		zap.String("from", string(before)),
		zap.String("to", string(user.Rank)),
		zap.Int("total_points", user.TotalPoints),
	)
}
