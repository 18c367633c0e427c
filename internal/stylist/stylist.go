package stylist

import (
	"context"
	"errors"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/imaging"
)

// ErrEmptyResponse reports that the analysis provider returned no payload.
var ErrEmptyResponse = errors.New("empty response from provider")

// ErrNoImagePart reports a synthesis response that carried no image data.
var ErrNoImagePart = errors.New("no image data in provider response")

// TrendLevel classifies how adventurous a recommendation is.
type TrendLevel string

const (
	TrendClassic  TrendLevel = "Classic"
	TrendTrending TrendLevel = "Trending"
	TrendBold     TrendLevel = "Bold"
)

// Recommendation is a single proposed hairstyle with rationale. Identity
// is ID; uniqueness within one AnalysisResult is expected but not enforced.
type Recommendation struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	WhyItWorks  string     `json:"whyItWorks"`
	TrendLevel  TrendLevel `json:"trendLevel"`
}

// AnalysisResult is the structured outcome of one face/hair analysis.
// Immutable once received; discarded on session reset.
type AnalysisResult struct {
	FaceShape       string           `json:"faceShape"`
	HairTexture     string           `json:"hairTexture"`
	Recommendations []Recommendation `json:"recommendations"`
}

// GeneratedStyle pairs a recommendation with the synthesized image
// depicting it on the subject.
type GeneratedStyle struct {
	Style Recommendation
	Image *imaging.EncodedImage
}

// Analyzer is the remote face/hair analysis collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, img *imaging.EncodedImage) (*AnalysisResult, error)
}

// Renderer is the remote style synthesis collaborator. It returns a new
// image depicting the subject with the named hairstyle.
type Renderer interface {
	RenderStyle(ctx context.Context, img *imaging.EncodedImage, styleName string) (*imaging.EncodedImage, error)
}
