package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/imaging"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/logging"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/repository"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/session"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/stylist"
)

// RunRepository defines the persistence operations needed by the use case.
type RunRepository interface {
	SaveLog(ctx context.Context, log *repository.StyleRunLog) error
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// StylingUseCase orchestrates the analysis -> fan-out synthesis pipeline
// and drives the per-user session state machine.
type StylingUseCase struct {
	sessions    *session.Manager
	analyzer    stylist.Analyzer
	renderer    stylist.Renderer
	cache       Cache
	repo        RunRepository
	logger      *zap.Logger
	callTimeout time.Duration
	analysisTTL time.Duration

	// runDone, when set, is invoked after a run has finished all state
	// mutation and persistence. Tests hook it instead of sleeping.
	runDone func(runID string)
}

// NewStylingUseCase constructs a new use case instance.
func NewStylingUseCase(
	sessions *session.Manager,
	analyzer stylist.Analyzer,
	renderer stylist.Renderer,
	cache Cache,
	repo RunRepository,
	logger *zap.Logger,
	callTimeout time.Duration,
	analysisTTL time.Duration,
) *StylingUseCase {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	if analysisTTL <= 0 {
		analysisTTL = time.Hour
	}
	return &StylingUseCase{
		sessions:    sessions,
		analyzer:    analyzer,
		renderer:    renderer,
		cache:       cache,
		repo:        repo,
		logger:      logger.Named("styling_usecase"),
		callTimeout: callTimeout,
		analysisTTL: analysisTTL,
	}
}

// Session returns the live session for a user.
func (uc *StylingUseCase) Session(userID string) *session.Session {
	return uc.sessions.Get(userID)
}

// StartProcessing moves the user's session into ANALYZING for the given
// image and launches the processing run in the background. The caller gets
// the run ID immediately; progress is observed through session snapshots.
func (uc *StylingUseCase) StartProcessing(userID string, img *imaging.EncodedImage) (string, error) {
	sess := uc.sessions.Get(userID)
	token, err := sess.StartRun(img)
	if err != nil {
		return "", err
	}

	go uc.run(userID, sess, token, img)
	return token, nil
}

// styleOutcome is the per-task result of one synthesis call: either a
// rendered style or the reason it failed.
type styleOutcome struct {
	style stylist.Recommendation
	image *imaging.EncodedImage
	err   error
}

func (uc *StylingUseCase) run(userID string, sess *session.Session, token string, img *imaging.EncodedImage) {
	start := time.Now()
	opLogger := logging.WithOperation(uc.logger, "usecase.process_photo", token)

	// The originating HTTP request has already returned; the run owns its
	// own lifetime.
	ctx := context.Background()

	analysis, err := uc.analyze(ctx, token, img)
	if err != nil {
		failure := FailureFor(err)
		opLogger.Error("analysis failed", zap.Error(err), zap.String("kind", failure.Kind))
		if sess.FailRun(token, failure) {
			uc.persistRun(ctx, userID, token, img, nil, 0, failure.Kind, start)
		}
		uc.notifyDone(token)
		return
	}

	if !sess.MarkGenerating(token, analysis) {
		opLogger.Info("run superseded before generation, discarding analysis")
		uc.notifyDone(token)
		return
	}

	outcomes := uc.renderAll(ctx, token, img, analysis.Recommendations)

	results := make([]stylist.GeneratedStyle, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.err != nil {
			opLogger.Warn("style synthesis failed, dropping from results",
				zap.String("style", outcome.style.Name), zap.Error(outcome.err))
			continue
		}
		results = append(results, stylist.GeneratedStyle{Style: outcome.style, Image: outcome.image})
	}

	if len(analysis.Recommendations) > 0 && len(results) == 0 {
		err := firstError(outcomes)
		failure := FailureFor(err)
		opLogger.Error("all style syntheses failed", zap.Error(err), zap.String("kind", failure.Kind))
		if sess.FailRun(token, failure) {
			uc.persistRun(ctx, userID, token, img, analysis, 0, failure.Kind, start)
		}
		uc.notifyDone(token)
		return
	}

	if sess.CompleteRun(token, results) {
		opLogger.Info("processing complete",
			zap.Int("requested", len(analysis.Recommendations)),
			zap.Int("rendered", len(results)),
			zap.Duration("elapsed", time.Since(start)))
		uc.persistRun(ctx, userID, token, img, analysis, len(results), "", start)
	} else {
		opLogger.Info("run superseded before completion, discarding results")
	}
	uc.notifyDone(token)
}

func (uc *StylingUseCase) analyze(ctx context.Context, runID string, img *imaging.EncodedImage) (*stylist.AnalysisResult, error) {
	digest := sourceDigest(img.Data)
	cacheKey := analysisCacheKey(digest)
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze", runID)

	if uc.cache != nil {
		if cached, err := uc.cache.Get(ctx, cacheKey); err == nil {
			var result stylist.AnalysisResult
			if err := json.Unmarshal([]byte(cached), &result); err != nil {
				opLogger.Warn("failed to decode cached analysis", zap.Error(err))
			} else {
				opLogger.Info("analysis served from cache", zap.String("digest", digest))
				return &result, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read analysis cache", zap.Error(err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.callTimeout)
	defer cancel()

	result, err := uc.analyzer.Analyze(callCtx, img)
	if err != nil {
		return nil, logging.NewOperationError("usecase.analyze", runID, err)
	}
	fillRecommendationIDs(result)

	if uc.cache != nil {
		if serialized, err := json.Marshal(result); err == nil {
			if err := uc.cache.Set(ctx, cacheKey, string(serialized), uc.analysisTTL); err != nil {
				opLogger.Warn("failed to cache analysis", zap.Error(err))
			}
		}
	}

	return result, nil
}

// renderAll fans out one synthesis call per recommendation and waits for
// all of them to settle. Outcome order matches recommendation order.
func (uc *StylingUseCase) renderAll(ctx context.Context, runID string, img *imaging.EncodedImage, recs []stylist.Recommendation) []styleOutcome {
	outcomes := make([]styleOutcome, len(recs))

	var wg sync.WaitGroup
	for i, rec := range recs {
		wg.Add(1)
		go func(i int, rec stylist.Recommendation) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, uc.callTimeout)
			defer cancel()

			image, err := uc.renderer.RenderStyle(callCtx, img, rec.Name)
			outcomes[i] = styleOutcome{
				style: rec,
				image: image,
				err:   logging.NewOperationError("usecase.render_style", runID, err),
			}
		}(i, rec)
	}
	wg.Wait()

	return outcomes
}

func (uc *StylingUseCase) persistRun(ctx context.Context, userID, runID string, img *imaging.EncodedImage, analysis *stylist.AnalysisResult, rendered int, errorKind string, start time.Time) {
	if uc.repo == nil {
		return
	}

	log := &repository.StyleRunLog{
		RunID:      runID,
		UserID:     userID,
		SourceSHA1: sourceDigest(img.Data),
		Success:    errorKind == "",
		ErrorKind:  errorKind,
		LatencyMs:  time.Since(start).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if analysis != nil {
		log.FaceShape = analysis.FaceShape
		log.HairTexture = analysis.HairTexture
		log.StylesRequested = len(analysis.Recommendations)
	}
	log.StylesRendered = rendered

	if err := uc.repo.SaveLog(ctx, log); err != nil {
		logging.WithOperation(uc.logger, "usecase.persist_run", runID).
			Warn("failed to persist run log", zap.Error(err))
	}
}

// fillRecommendationIDs backfills missing identifiers; the provider is
// expected to supply them but the schema is not enforced.
func fillRecommendationIDs(result *stylist.AnalysisResult) {
	for i := range result.Recommendations {
		if result.Recommendations[i].ID == "" {
			result.Recommendations[i].ID = uuid.NewString()
		}
	}
}

func firstError(outcomes []styleOutcome) error {
	for _, outcome := range outcomes {
		if outcome.err != nil {
			return outcome.err
		}
	}
	return errors.New("style synthesis produced no results")
}

func (uc *StylingUseCase) notifyDone(runID string) {
	if uc.runDone != nil {
		uc.runDone(runID)
	}
}
