package gemini

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/config"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/imaging"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/logging"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/stylist"
)

// Client talks to the Gemini API for both analysis and style synthesis.
// It implements stylist.Analyzer and stylist.Renderer.
type Client struct {
	genAI         *genai.Client
	analysisModel string
	imageModel    string
	logger        *zap.Logger
}

// NewClient builds a Gemini-backed client from the configured credential.
// A missing API key is not an error here; calls made with it will fail at
// the authorization stage and are classified upstream.
func NewClient(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*Client, error) {
	genAIClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		wrapped := logging.NewOperationError("gemini.new_client", "", err)
		logger.Error("failed to create genai client", zap.Error(wrapped))
		return nil, wrapped
	}

	return &Client{
		genAI:         genAIClient,
		analysisModel: cfg.AnalysisModel,
		imageModel:    cfg.ImageModel,
		logger:        logger.Named("gemini"),
	}, nil
}

// Analyze sends the portrait to the analysis model and decodes the
// structured JSON verdict.
func (c *Client) Analyze(ctx context.Context, img *imaging.EncodedImage) (*stylist.AnalysisResult, error) {
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
		{Text: analysisPrompt},
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.genAI.Models.GenerateContent(ctx, c.analysisModel, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, stylist.ErrEmptyResponse
	}

	result, err := ParseAnalysis(text)
	if err != nil {
		c.logger.Warn("analysis payload did not parse", zap.Error(err), zap.Int("payload_len", len(text)))
		return nil, err
	}

	c.logger.Info("analysis complete",
		zap.String("face_shape", result.FaceShape),
		zap.String("hair_texture", result.HairTexture),
		zap.Int("recommendations", len(result.Recommendations)))
	return result, nil
}

// RenderStyle asks the image model to depict the subject with the named
// hairstyle and extracts the inline image part from the response.
func (c *Client) RenderStyle(ctx context.Context, img *imaging.EncodedImage, styleName string) (*imaging.EncodedImage, error) {
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
		{Text: stylingPrompt(styleName)},
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.genAI.Models.GenerateContent(ctx, c.imageModel, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			c.logger.Info("style rendered",
				zap.String("style", styleName),
				zap.String("mime_type", mimeType),
				zap.Int("bytes", len(part.InlineData.Data)))
			return &imaging.EncodedImage{MIMEType: mimeType, Data: part.InlineData.Data}, nil
		}
	}

	c.logger.Warn("no image part in synthesis response", zap.String("style", styleName))
	return nil, stylist.ErrNoImagePart
}
