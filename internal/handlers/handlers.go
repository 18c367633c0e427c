package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/auth"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/imaging"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/session"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/usecase"
)

// MaxUploadSize caps accepted photo payloads.
const MaxUploadSize = 10 << 20

// SessionHandler serves the styling session API.
type SessionHandler struct {
	uc     *usecase.StylingUseCase
	logger *zap.Logger
}

func NewSessionHandler(uc *usecase.StylingUseCase, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{uc: uc, logger: logger.Named("handlers")}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, h *SessionHandler, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1", authMiddleware)
	{
		api.POST("/session/photo", h.UploadPhoto)
		api.POST("/session/capture", h.CaptureFrame)
		api.GET("/session", h.GetSession)
		api.POST("/session/reset", h.ResetSession)
		api.GET("/metrics", h.GetMetrics)
	}
}

// UploadPhoto accepts a user-selected photo and starts a processing run.
// Non-image files are rejected and the session stays in UPLOAD.
func (h *SessionHandler) UploadPhoto(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	data, declaredType, ok := h.readUpload(c, "photo")
	if !ok {
		return
	}

	img, err := imaging.NewEncodedImage(data, declaredType)
	if err != nil {
		h.logger.Warn("rejected upload", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid file type",
			"kind":  string(usecase.KindInvalidInput),
		})
		return
	}

	h.startRun(c, userID, img)
}

// CaptureFrame accepts a raw camera frame, square-crops it server-side,
// and starts a processing run. An undecodable frame reports the camera as
// unavailable so the client falls back to file upload.
func (h *SessionHandler) CaptureFrame(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	data, _, ok := h.readUpload(c, "frame")
	if !ok {
		return
	}

	img, err := imaging.CenterSquareCrop(data)
	if err != nil {
		h.logger.Warn("camera frame unusable", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "camera unavailable",
			"kind":     string(usecase.KindDeviceUnavailable),
			"fallback": "file_upload",
		})
		return
	}

	h.startRun(c, userID, img)
}

// GetSession reports the current phase, rotating status message, any
// surfaced error, and the results once available.
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	snap := h.uc.Session(userID).Snapshot()
	c.JSON(http.StatusOK, renderSnapshot(snap))
}

// ResetSession starts a new session: unconditional return to UPLOAD.
func (h *SessionHandler) ResetSession(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	h.uc.Session(userID).Reset()
	c.JSON(http.StatusOK, gin.H{"phase": string(session.PhaseUpload)})
}

// GetMetrics reports aggregated run statistics.
func (h *SessionHandler) GetMetrics(c *gin.Context) {
	summary, err := h.uc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("metrics aggregation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *SessionHandler) readUpload(c *gin.Context, field string) ([]byte, string, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file is required"})
		return nil, "", false
	}

	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return nil, "", false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open " + field})
		return nil, "", false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read " + field})
		return nil, "", false
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return nil, "", false
	}

	return data, contentTypeOf(file), true
}

func contentTypeOf(file *multipart.FileHeader) string {
	return file.Header.Get("Content-Type")
}

func (h *SessionHandler) startRun(c *gin.Context, userID string, img *imaging.EncodedImage) {
	runID, err := h.uc.StartProcessing(userID, img)
	if err != nil {
		if errors.Is(err, session.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": "processing already in progress"})
			return
		}
		h.logger.Error("failed to start processing", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start processing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"phase":  string(session.PhaseAnalyzing),
	})
}
