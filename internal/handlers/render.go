package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/session"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/stylist"
)

type recommendationView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	WhyItWorks  string `json:"why_it_works"`
	TrendLevel  string `json:"trend_level"`
}

type generatedStyleView struct {
	Style    recommendationView `json:"style"`
	ImageURL string             `json:"image_url"`
}

func renderSnapshot(snap session.Snapshot) gin.H {
	body := gin.H{"phase": string(snap.Phase)}

	if snap.StatusMessage != "" {
		body["status_message"] = snap.StatusMessage
	}
	if snap.Failure != nil {
		body["error"] = snap.Failure
	}
	if snap.Analysis != nil {
		recs := make([]recommendationView, 0, len(snap.Analysis.Recommendations))
		for _, rec := range snap.Analysis.Recommendations {
			recs = append(recs, viewOf(rec))
		}
		body["analysis"] = gin.H{
			"face_shape":      snap.Analysis.FaceShape,
			"hair_texture":    snap.Analysis.HairTexture,
			"recommendations": recs,
		}
	}
	if snap.Phase == session.PhaseResult {
		styles := make([]generatedStyleView, 0, len(snap.Results))
		for _, result := range snap.Results {
			styles = append(styles, generatedStyleView{
				Style:    viewOf(result.Style),
				ImageURL: result.Image.DataURI(),
			})
		}
		body["results"] = styles
	}

	return body
}

func viewOf(rec stylist.Recommendation) recommendationView {
	return recommendationView{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		WhyItWorks:  rec.WhyItWorks,
		TrendLevel:  string(rec.TrendLevel),
	}
}
