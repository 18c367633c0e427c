package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/stylist"
)

const analysisPrompt = `You are an expert hairstylist and barber. Analyze the face and hair in this photo.
Return ONLY a JSON object with this exact shape:
{
  "faceShape": "<one of: Oval, Round, Square, Heart, Diamond, Oblong>",
  "hairTexture": "<one of: Straight, Wavy, Curly, Coily>",
  "recommendations": [
    {
      "id": "<short-kebab-case-slug>",
      "name": "<hairstyle name>",
      "description": "<one sentence describing the cut>",
      "whyItWorks": "<one sentence on why it suits this face shape and texture>",
      "trendLevel": "<one of: Classic, Trending, Bold>"
    }
  ]
}
Give 4 diverse recommendations spanning classic to bold. Do not include any text outside the JSON object.`

func stylingPrompt(styleName string) string {
	return fmt.Sprintf(`Edit this photo so the person is wearing a "%s" hairstyle. `+
		`Keep the face, skin tone, expression, lighting and background exactly as they are; `+
		`change only the hair. The result must look like a realistic photograph of the same person.`, styleName)
}

// ParseAnalysis decodes the model's JSON verdict, tolerating a fenced
// code block wrapper. The recommendation count is whatever the model
// returned; callers must not assume four.
func ParseAnalysis(payload string) (*stylist.AnalysisResult, error) {
	trimmed := strings.TrimSpace(payload)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if trimmed == "" {
		return nil, stylist.ErrEmptyResponse
	}

	var result stylist.AnalysisResult
	if err := json.Unmarshal([]byte(trimmed), &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	if result.FaceShape == "" && result.HairTexture == "" && len(result.Recommendations) == 0 {
		return nil, fmt.Errorf("failed to parse analysis response: no recognizable fields")
	}
	return &result, nil
}
