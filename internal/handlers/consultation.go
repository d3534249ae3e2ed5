package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medscribe/medscribe-backend/internal/middleware"
	"github.com/medscribe/medscribe-backend/internal/platform/apierr"
	"github.com/medscribe/medscribe-backend/internal/services"
	"github.com/medscribe/medscribe-backend/internal/types"
)

type ConsultationHandler struct {
	consultations services.ConsultationService
	review        services.ReviewService
}

func NewConsultationHandler(consultations services.ConsultationService, review services.ReviewService) *ConsultationHandler {
	return &ConsultationHandler{consultations: consultations, review: review}
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", errors.New("caller identity missing"))
	}
	return id, ok
}

func consultationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, errors.New("invalid consultation id"))
		return uuid.Nil, false
	}
	return id, true
}

// consultationView shapes one consultation for the wire. Failed records get
// the generic user-facing message; internal error detail never leaves the
// service.
func consultationView(x *types.Consultation) gin.H {
	v := gin.H{"consultation": x}
	if x.Status == types.StatusFailed {
		v["message"] = services.FailedUserMessage()
	}
	return v
}

func (h *ConsultationHandler) Create(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, errors.New("audio file required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}

	format := c.PostForm("format")
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(fh.Filename), ".")
	}
	duration, _ := strconv.ParseFloat(c.PostForm("duration_sec"), 64)

	out, err := h.consultations.Create(c.Request.Context(), services.CreateConsultationInput{
		OwnerUserID: userID,
		PatientName: c.PostForm("patient_name"),
		Language:    c.PostForm("language"),
		Audio:       audio,
		Format:      format,
		DurationSec: duration,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, consultationView(out))
}

func (h *ConsultationHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := h.consultations.List(c.Request.Context(), userID, c.Query("status"), limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"consultations": out})
}

func (h *ConsultationHandler) Get(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := consultationID(c)
	if !ok {
		return
	}
	out, err := h.consultations.Get(c.Request.Context(), userID, id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, consultationView(out))
}

type updateNoteRequest struct {
	Note   *types.Note `json:"note" binding:"required"`
	Reason string      `json:"reason"`
}

func (h *ConsultationHandler) UpdateNote(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := consultationID(c)
	if !ok {
		return
	}
	var req updateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}
	out, err := h.review.Edit(c.Request.Context(), userID, id, req.Note, req.Reason)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, consultationView(out))
}

type approveRequest struct {
	Note *types.Note `json:"note"`
}

func (h *ConsultationHandler) Approve(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := consultationID(c)
	if !ok {
		return
	}
	var req approveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
			return
		}
	}
	out, err := h.review.Approve(c.Request.Context(), userID, id, req.Note)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, consultationView(out))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *ConsultationHandler) Reject(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := consultationID(c)
	if !ok {
		return
	}
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
			return
		}
	}
	out, err := h.review.Reject(c.Request.Context(), userID, id, req.Reason)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, consultationView(out))
}

func (h *ConsultationHandler) History(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := consultationID(c)
	if !ok {
		return
	}
	out, err := h.review.History(c.Request.Context(), userID, id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"history": out})
}

func (h *ConsultationHandler) Document(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := consultationID(c)
	if !ok {
		return
	}
	pdf, filename, err := h.consultations.Document(c.Request.Context(), userID, id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
