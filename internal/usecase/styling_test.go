package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/imaging"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/repository"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/session"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/stylist"
)

type stubAnalyzer struct {
	mu     sync.Mutex
	result *stylist.AnalysisResult
	err    error
	calls  int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, img *imaging.EncodedImage) (*stylist.AnalysisResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubAnalyzer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubRenderer struct {
	mu      sync.Mutex
	failFor map[string]error
	calls   []string
	block   chan struct{}
}

func (s *stubRenderer) RenderStyle(ctx context.Context, img *imaging.EncodedImage, styleName string) (*imaging.EncodedImage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, styleName)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if err, ok := s.failFor[styleName]; ok {
		return nil, err
	}
	return &imaging.EncodedImage{MIMEType: "image/png", Data: []byte("png:" + styleName)}, nil
}

func (s *stubRenderer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubCache struct {
	mu     sync.Mutex
	values map[string]string
	sets   []string
}

func newStubCache() *stubCache {
	return &stubCache{values: map[string]string{}}
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = fmt.Sprint(value)
	s.sets = append(s.sets, key)
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.values[key]; ok {
		return value, nil
	}
	return "", redis.Nil
}

type stubRunRepository struct {
	mu   sync.Mutex
	logs []*repository.StyleRunLog
}

func (s *stubRunRepository) SaveLog(ctx context.Context, log *repository.StyleRunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func (s *stubRunRepository) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := &repository.MetricsAggregation{TotalCount: int64(len(s.logs))}
	for _, log := range s.logs {
		if log.Success {
			agg.SuccessCount++
		}
	}
	return agg, nil
}

func (s *stubRunRepository) lastLog() *repository.StyleRunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) == 0 {
		return nil
	}
	return s.logs[len(s.logs)-1]
}

func fourRecommendations() *stylist.AnalysisResult {
	return &stylist.AnalysisResult{
		FaceShape:   "Oval",
		HairTexture: "Wavy",
		Recommendations: []stylist.Recommendation{
			{ID: "a", Name: "Textured Crop", TrendLevel: stylist.TrendTrending},
			{ID: "b", Name: "Classic Side Part", TrendLevel: stylist.TrendClassic},
			{ID: "c", Name: "Modern Mullet", TrendLevel: stylist.TrendBold},
			{ID: "d", Name: "Buzz Cut", TrendLevel: stylist.TrendClassic},
		},
	}
}

func newTestUseCase(analyzer stylist.Analyzer, renderer stylist.Renderer, cache Cache, repo RunRepository) (*StylingUseCase, chan string) {
	uc := NewStylingUseCase(session.NewManager(), analyzer, renderer, cache, repo, zap.NewNop(), time.Second, time.Minute)
	done := make(chan string, 4)
	uc.runDone = func(runID string) { done <- runID }
	return uc, done
}

func waitDone(t *testing.T, done chan string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish in time")
	}
}

func sourceImage() *imaging.EncodedImage {
	return &imaging.EncodedImage{MIMEType: "image/jpeg", Data: []byte("source-jpeg")}
}

func TestProcessRendersEveryRecommendationInOrder(t *testing.T) {
	analyzer := &stubAnalyzer{result: fourRecommendations()}
	renderer := &stubRenderer{}
	repo := &stubRunRepository{}
	uc, done := newTestUseCase(analyzer, renderer, newStubCache(), repo)

	if _, err := uc.StartProcessing("user-1", sourceImage()); err != nil {
		t.Fatalf("expected run to start, got error: %v", err)
	}
	waitDone(t, done)

	snap := uc.Session("user-1").Snapshot()
	if snap.Phase != session.PhaseResult {
		t.Fatalf("expected RESULT, got %s", snap.Phase)
	}
	if renderer.callCount() != 4 {
		t.Fatalf("expected one synthesis call per recommendation, got %d", renderer.callCount())
	}
	if len(snap.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(snap.Results))
	}
	for i, want := range []string{"Textured Crop", "Classic Side Part", "Modern Mullet", "Buzz Cut"} {
		if snap.Results[i].Style.Name != want {
			t.Fatalf("result %d out of order: got %s want %s", i, snap.Results[i].Style.Name, want)
		}
	}

	log := repo.lastLog()
	if log == nil || !log.Success || log.StylesRequested != 4 || log.StylesRendered != 4 {
		t.Fatalf("unexpected persisted log: %+v", log)
	}
}

func TestPartialSynthesisFailureSilentlyReducesResults(t *testing.T) {
	analyzer := &stubAnalyzer{result: fourRecommendations()}
	renderer := &stubRenderer{failFor: map[string]error{"Classic Side Part": stylist.ErrNoImagePart}}
	uc, done := newTestUseCase(analyzer, renderer, newStubCache(), &stubRunRepository{})

	_, _ = uc.StartProcessing("user-1", sourceImage())
	waitDone(t, done)

	snap := uc.Session("user-1").Snapshot()
	if snap.Phase != session.PhaseResult {
		t.Fatalf("expected RESULT despite one failure, got %s", snap.Phase)
	}
	if snap.Failure != nil {
		t.Fatalf("partial failure must not surface an error, got %+v", snap.Failure)
	}
	if len(snap.Results) != 3 {
		t.Fatalf("expected 3 surviving results, got %d", len(snap.Results))
	}
	for i, want := range []string{"Textured Crop", "Modern Mullet", "Buzz Cut"} {
		if snap.Results[i].Style.Name != want {
			t.Fatalf("surviving results out of order at %d: got %s want %s", i, snap.Results[i].Style.Name, want)
		}
	}
}

func TestTotalSynthesisFailureSurfacesProviderError(t *testing.T) {
	analyzer := &stubAnalyzer{result: fourRecommendations()}
	renderer := &stubRenderer{failFor: map[string]error{
		"Textured Crop":     stylist.ErrNoImagePart,
		"Classic Side Part": stylist.ErrNoImagePart,
		"Modern Mullet":     stylist.ErrNoImagePart,
		"Buzz Cut":          stylist.ErrNoImagePart,
	}}
	repo := &stubRunRepository{}
	uc, done := newTestUseCase(analyzer, renderer, newStubCache(), repo)

	_, _ = uc.StartProcessing("user-1", sourceImage())
	waitDone(t, done)

	snap := uc.Session("user-1").Snapshot()
	if snap.Phase != session.PhaseUpload {
		t.Fatalf("expected UPLOAD after total failure, got %s", snap.Phase)
	}
	if snap.Failure == nil || snap.Failure.Kind != string(KindProvider) {
		t.Fatalf("expected surfaced provider error, got %+v", snap.Failure)
	}

	log := repo.lastLog()
	if log == nil || log.Success || log.ErrorKind != string(KindProvider) {
		t.Fatalf("unexpected persisted log: %+v", log)
	}
}

func TestAnalysisFailureSkipsSynthesis(t *testing.T) {
	analyzer := &stubAnalyzer{err: stylist.ErrEmptyResponse}
	renderer := &stubRenderer{}
	uc, done := newTestUseCase(analyzer, renderer, newStubCache(), &stubRunRepository{})

	_, _ = uc.StartProcessing("user-1", sourceImage())
	waitDone(t, done)

	snap := uc.Session("user-1").Snapshot()
	if snap.Phase != session.PhaseUpload {
		t.Fatalf("expected UPLOAD, got %s", snap.Phase)
	}
	if snap.Failure == nil || snap.Failure.Kind != string(KindProvider) {
		t.Fatalf("empty payload must classify as provider error, got %+v", snap.Failure)
	}
	if renderer.callCount() != 0 {
		t.Fatalf("no synthesis call may be issued when analysis fails, got %d", renderer.callCount())
	}
}

func TestCredentialFailureOffersRemediation(t *testing.T) {
	analyzer := &stubAnalyzer{err: errors.New("Error 403, Message: PERMISSION_DENIED")}
	uc, done := newTestUseCase(analyzer, &stubRenderer{}, newStubCache(), &stubRunRepository{})

	_, _ = uc.StartProcessing("user-1", sourceImage())
	waitDone(t, done)

	snap := uc.Session("user-1").Snapshot()
	if snap.Failure == nil || snap.Failure.Kind != string(KindCredential) {
		t.Fatalf("expected credential classification, got %+v", snap.Failure)
	}
	if !snap.Failure.CredentialAction {
		t.Fatal("credential failures must offer the remediation action")
	}
}

func TestZeroRecommendationsCompletesEmpty(t *testing.T) {
	analyzer := &stubAnalyzer{result: &stylist.AnalysisResult{FaceShape: "Round", HairTexture: "Coily"}}
	renderer := &stubRenderer{}
	uc, done := newTestUseCase(analyzer, renderer, newStubCache(), &stubRunRepository{})

	_, _ = uc.StartProcessing("user-1", sourceImage())
	waitDone(t, done)

	snap := uc.Session("user-1").Snapshot()
	if snap.Phase != session.PhaseResult {
		t.Fatalf("expected RESULT for zero recommendations, got %s", snap.Phase)
	}
	if len(snap.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(snap.Results))
	}
	if renderer.callCount() != 0 {
		t.Fatalf("expected zero synthesis calls, got %d", renderer.callCount())
	}
}

func TestResetDuringRunDiscardsLateCompletions(t *testing.T) {
	analyzer := &stubAnalyzer{result: fourRecommendations()}
	renderer := &stubRenderer{block: make(chan struct{})}
	uc, done := newTestUseCase(analyzer, renderer, newStubCache(), &stubRunRepository{})

	_, _ = uc.StartProcessing("user-1", sourceImage())

	sess := uc.Session("user-1")
	deadline := time.Now().Add(2 * time.Second)
	for sess.Phase() != session.PhaseGenerating {
		if time.Now().After(deadline) {
			t.Fatal("run never reached GENERATING")
		}
		time.Sleep(time.Millisecond)
	}

	sess.Reset()
	close(renderer.block)
	waitDone(t, done)

	snap := sess.Snapshot()
	if snap.Phase != session.PhaseUpload {
		t.Fatalf("late completions must not move a reset session, got %s", snap.Phase)
	}
	if snap.Results != nil || snap.Analysis != nil || snap.Failure != nil {
		t.Fatalf("late completions must not repopulate state, got %+v", snap)
	}
}

func TestAnalysisServedFromCacheSkipsRemoteCall(t *testing.T) {
	cache := newStubCache()
	serialized, err := json.Marshal(fourRecommendations())
	if err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}
	img := sourceImage()
	if err := cache.Set(context.Background(), analysisCacheKey(sourceDigest(img.Data)), string(serialized), time.Minute); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	analyzer := &stubAnalyzer{err: errors.New("must not be called")}
	uc, done := newTestUseCase(analyzer, &stubRenderer{}, cache, &stubRunRepository{})

	_, _ = uc.StartProcessing("user-1", img)
	waitDone(t, done)

	if analyzer.callCount() != 0 {
		t.Fatalf("cached analysis must skip the remote call, got %d calls", analyzer.callCount())
	}
	if got := uc.Session("user-1").Snapshot().Phase; got != session.PhaseResult {
		t.Fatalf("expected RESULT from cached analysis, got %s", got)
	}
}

func TestSecondUploadRejectedWhileRunning(t *testing.T) {
	analyzer := &stubAnalyzer{result: fourRecommendations()}
	renderer := &stubRenderer{block: make(chan struct{})}
	uc, done := newTestUseCase(analyzer, renderer, newStubCache(), &stubRunRepository{})

	_, _ = uc.StartProcessing("user-1", sourceImage())

	if _, err := uc.StartProcessing("user-1", sourceImage()); !errors.Is(err, session.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(renderer.block)
	waitDone(t, done)
}
