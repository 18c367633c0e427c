package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/imaging"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/stylist"
)

// Phase is the lifecycle stage of one styling session.
type Phase string

const (
	PhaseUpload     Phase = "UPLOAD"
	PhaseAnalyzing  Phase = "ANALYZING"
	PhaseGenerating Phase = "GENERATING"
	PhaseResult     Phase = "RESULT"
)

// ErrBusy reports an acquisition attempt while a run is already in flight.
var ErrBusy = errors.New("a processing run is already in progress")

// Failure is the surfaced outcome of a failed run. CredentialAction tells
// the presentation layer to offer the update-credential remediation.
type Failure struct {
	Kind             string `json:"kind"`
	Message          string `json:"message"`
	CredentialAction bool   `json:"credential_action"`
}

// Snapshot is a consistent read of the session for rendering. Fields
// outside the current phase's data are nil: UPLOAD carries nothing,
// ANALYZING carries the source image, GENERATING adds the analysis, and
// RESULT adds the generated styles.
type Snapshot struct {
	Phase         Phase
	StatusMessage string
	SourceImage   *imaging.EncodedImage
	Analysis      *stylist.AnalysisResult
	Results       []stylist.GeneratedStyle
	Failure       *Failure
}

// Session holds the live state for one user. All mutation goes through
// run-token-guarded methods so completions from a superseded run can never
// touch newer state.
type Session struct {
	mu       sync.Mutex
	runToken string
	phase    Phase
	source   *imaging.EncodedImage
	analysis *stylist.AnalysisResult
	results  []stylist.GeneratedStyle
	failure  *Failure
	rotator  *rotator

	// rotatorInterval overrides the status rotation cadence in tests.
	rotatorInterval time.Duration
}

func New() *Session {
	return &Session{phase: PhaseUpload}
}

// StartRun moves UPLOAD -> ANALYZING for a freshly acquired image, clears
// any previous error, and returns the token that authorizes subsequent
// mutations for this run.
func (s *Session) StartRun(img *imaging.EncodedImage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseUpload {
		return "", ErrBusy
	}

	token := uuid.NewString()
	s.runToken = token
	s.phase = PhaseAnalyzing
	s.source = img
	s.analysis = nil
	s.results = nil
	s.failure = nil
	s.startRotatorLocked()
	return token, nil
}

// MarkGenerating records the analysis and moves ANALYZING -> GENERATING.
// Returns false when token belongs to a superseded run.
func (s *Session) MarkGenerating(token string, analysis *stylist.AnalysisResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runToken != token || s.phase != PhaseAnalyzing {
		return false
	}
	s.analysis = analysis
	s.phase = PhaseGenerating
	return true
}

// CompleteRun stores the aggregated results and moves to RESULT.
func (s *Session) CompleteRun(token string, results []stylist.GeneratedStyle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runToken != token || s.phase != PhaseGenerating {
		return false
	}
	s.results = results
	s.phase = PhaseResult
	s.stopRotatorLocked()
	return true
}

// FailRun surfaces the failure and returns to UPLOAD, discarding the
// run's image and analysis.
func (s *Session) FailRun(token string, failure Failure) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runToken != token || (s.phase != PhaseAnalyzing && s.phase != PhaseGenerating) {
		return false
	}
	s.phase = PhaseUpload
	s.source = nil
	s.analysis = nil
	s.results = nil
	s.failure = &failure
	s.stopRotatorLocked()
	return true
}

// Reset unconditionally returns to UPLOAD and clears image, analysis,
// results and error. Any run still in flight is orphaned: its token no
// longer matches and its completion is discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runToken = ""
	s.phase = PhaseUpload
	s.source = nil
	s.analysis = nil
	s.results = nil
	s.failure = nil
	s.stopRotatorLocked()
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Phase:   s.phase,
		Failure: s.failure,
	}
	switch s.phase {
	case PhaseAnalyzing:
		snap.SourceImage = s.source
		snap.StatusMessage = s.statusMessageLocked()
	case PhaseGenerating:
		snap.SourceImage = s.source
		snap.Analysis = s.analysis
		snap.StatusMessage = s.statusMessageLocked()
	case PhaseResult:
		snap.SourceImage = s.source
		snap.Analysis = s.analysis
		snap.Results = append([]stylist.GeneratedStyle(nil), s.results...)
	}
	return snap
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Manager keys live sessions by authenticated user. Exactly one session
// is live per user at a time.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the user's live session, creating one in UPLOAD if absent.
func (m *Manager) Get(userID string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s = New()
	m.sessions[userID] = s
	return s
}
