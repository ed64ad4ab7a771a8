package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/repository"
	"github.com/pulseworks/pulse-api/internal/service"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
	"github.com/pulseworks/pulse-api/pkg/response"
)

// SurveyHandler exposes survey authoring and lifecycle endpoints.
type SurveyHandler struct {
	surveys   *service.SurveyService
	generator service.Generator
}

// NewSurveyHandler constructs handler.
func NewSurveyHandler(surveys *service.SurveyService, generator service.Generator) *SurveyHandler {
	return &SurveyHandler{surveys: surveys, generator: generator}
}

// Create godoc
// @Summary Create a survey from an authoring document
// @Tags Surveys
// @Accept json
// @Produce json
// @Param payload body dto.SurveyDocument true "Survey document"
// @Success 201 {object} response.Envelope
// @Router /surveys [post]
func (h *SurveyHandler) Create(c *gin.Context) {
	var doc dto.SurveyDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid survey document"))
		return
	}
	claims := claimsFromContext(c)
	survey, err := h.surveys.CreateFromDocument(c.Request.Context(), doc, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, survey)
}

// Generate godoc
// @Summary Generate a survey document from a brief
// @Tags Surveys
// @Accept json
// @Produce json
// @Param payload body dto.GenerateRequest true "Generation brief"
// @Success 200 {object} response.Envelope
// @Router /surveys/generate [post]
func (h *SurveyHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid generation brief"))
		return
	}
	doc, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// List godoc
// @Summary List surveys
// @Tags Surveys
// @Produce json
// @Param status query string false "Filter by lifecycle status"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /surveys [get]
func (h *SurveyHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	filter := repository.SurveyFilter{
		Status:   models.SurveyStatus(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	}
	summaries, pagination, err := h.surveys.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, pagination)
}

// Get godoc
// @Summary Fetch a survey with its full schema
// @Tags Surveys
// @Produce json
// @Param id path string true "Survey ID"
// @Success 200 {object} response.Envelope
// @Router /surveys/{id} [get]
func (h *SurveyHandler) Get(c *gin.Context) {
	survey, err := h.surveys.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, survey, nil)
}

// Transition godoc
// @Summary Apply a lifecycle transition
// @Tags Surveys
// @Accept json
// @Produce json
// @Param id path string true "Survey ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /surveys/{id}/transition [post]
func (h *SurveyHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "target status required"))
		return
	}
	survey, err := h.surveys.Transition(c.Request.Context(), c.Param("id"), req.Target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, survey, nil)
}

// AddSection godoc
// @Summary Append a section to a draft survey
// @Tags Surveys
// @Accept json
// @Produce json
// @Param id path string true "Survey ID"
// @Param payload body dto.SectionDocument true "Section document"
// @Success 201 {object} response.Envelope
// @Router /surveys/{id}/sections [post]
func (h *SurveyHandler) AddSection(c *gin.Context) {
	var doc dto.SectionDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid section document"))
		return
	}
	section, err := h.surveys.AddSection(c.Request.Context(), c.Param("id"), doc)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// AddQuestion godoc
// @Summary Append a question to a section
// @Tags Surveys
// @Accept json
// @Produce json
// @Param sectionId path string true "Section ID"
// @Param payload body dto.QuestionDocument true "Question document"
// @Success 201 {object} response.Envelope
// @Router /sections/{sectionId}/questions [post]
func (h *SurveyHandler) AddQuestion(c *gin.Context) {
	var doc dto.QuestionDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid question document"))
		return
	}
	question, err := h.surveys.AddQuestion(c.Request.Context(), c.Param("sectionId"), doc)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, question)
}

// Reorder godoc
// @Summary Reorder sections and questions of a draft survey
// @Tags Surveys
// @Accept json
// @Produce json
// @Param id path string true "Survey ID"
// @Param payload body dto.ReorderRequest true "New positions"
// @Success 204
// @Router /surveys/{id}/reorder [post]
func (h *SurveyHandler) Reorder(c *gin.Context) {
	var req dto.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reorder payload"))
		return
	}
	if err := h.surveys.Reorder(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
