package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/funnelkit/provision-api/internal/api/middleware"
	"github.com/funnelkit/provision-api/internal/api/shared"
	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/provision"
	"github.com/funnelkit/provision-api/internal/store"
)

// Submitter is the slice of the provisioning service the handler needs.
type Submitter interface {
	Submit(ctx context.Context, req domain.ProvisionRequest) (*provision.SubmitResult, error)
}

// StudentHandler serves the provisioning endpoint.
type StudentHandler struct {
	submitter Submitter
	validator *validator.Validate
	logger    *slog.Logger
}

// NewStudentHandler creates a StudentHandler.
func NewStudentHandler(submitter Submitter, v *validator.Validate, logger *slog.Logger) *StudentHandler {
	return &StudentHandler{
		submitter: submitter,
		validator: v,
		logger:    logger.With(slog.String("handler", "student")),
	}
}

// CreateStudent handles POST /api/students. The response status encodes
// the path taken: 202 when the job was queued, 201 when the account was
// created synchronously, 200 when the request was a duplicate of
// completed work.
func (h *StudentHandler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	managerID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	result, err := h.submitter.Submit(r.Context(), domain.ProvisionRequest{
		FullName:        req.FullName,
		Email:           req.Email,
		Password:        req.Password,
		RequestedByID:   managerID,
		RequestedByName: middleware.GetUserName(r),
	})
	if err != nil {
		h.respondSubmitError(w, r, err)
		return
	}

	switch {
	case result.Queued:
		shared.RespondWithJSON(w, r, http.StatusAccepted, result)
	case result.AlreadyProvisioned:
		shared.RespondWithJSON(w, r, http.StatusOK, result)
	default:
		shared.RespondWithJSON(w, r, http.StatusCreated, result)
	}
}

func (h *StudentHandler) respondSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := shared.GetTraceID(r.Context())

	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrEmptyFullName),
		errors.Is(err, domain.ErrEmptyEmail),
		errors.Is(err, domain.ErrEmptyPassword),
		errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordTooLong):
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
	case store.IsDuplicateError(err), errors.Is(err, store.ErrEmailExists):
		shared.RespondWithError(w, r, http.StatusConflict, "A student with this email already exists")
	default:
		h.logger.Error("provisioning request failed",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to provision student")
	}
}
