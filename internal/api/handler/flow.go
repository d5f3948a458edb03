package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gatewise/gatewise/internal/api/models"
	"github.com/gatewise/gatewise/internal/api/response"
	"github.com/gatewise/gatewise/internal/flow"
)

// FlowHandler exposes the setup-flow engine over HTTP.
type FlowHandler struct {
	flows  *flow.Manager
	logger zerolog.Logger
}

// NewFlowHandler creates a new FlowHandler.
func NewFlowHandler(flows *flow.Manager, logger zerolog.Logger) *FlowHandler {
	return &FlowHandler{flows: flows, logger: logger}
}

// StartFlow handles POST /v1/flows - starts a setup flow and returns its
// initial form.
func (h *FlowHandler) StartFlow(w http.ResponseWriter, r *http.Request) {
	var req models.StartFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}
	if req.Handler == "" {
		response.BadRequest(w, r, "handler is required", []models.FieldError{
			{Field: "handler", Message: "is required", Code: "handler_required"},
		})
		return
	}

	result, err := h.flows.Start(r.Context(), req.Handler)
	if err != nil {
		if errors.Is(err, flow.ErrUnknownHandler) {
			response.NotFound(w, r, "no such flow handler: "+req.Handler)
			return
		}
		h.logger.Error().Err(err).Str("handler", req.Handler).Msg("flow start failed")
		response.InternalError(w, r, "could not start flow")
		return
	}

	response.Created(w, r, "/v1/flows/"+result.FlowID, flowResponse(result))
}

// SubmitStep handles POST /v1/flows/{flowId} - submits user input to an
// in-progress flow and returns the next result.
func (h *FlowHandler) SubmitStep(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowId")

	var input map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	result, err := h.flows.Submit(r.Context(), flowID, input)
	if err != nil {
		if errors.Is(err, flow.ErrFlowNotFound) {
			response.NotFound(w, r, "flow not found or expired")
			return
		}
		h.logger.Error().Err(err).Str("flow_id", flowID).Msg("flow step failed")
		response.InternalError(w, r, "could not evaluate flow step")
		return
	}

	response.JSON(w, r, http.StatusOK, flowResponse(result))
}

// flowResponse converts a flow result to its API shape. Entry data is
// deliberately not exposed: it contains the device API keys.
func flowResponse(result *flow.Result) models.FlowResponse {
	resp := models.FlowResponse{
		FlowID: result.FlowID,
		Type:   string(result.Type),
		StepID: result.StepID,
		Input:  result.Input,
		Errors: result.Errors,
		Reason: result.Reason,
	}

	switch result.Type {
	case flow.ResultTypeForm:
		if result.Schema != nil {
			for _, field := range result.Schema.Fields {
				resp.Schema = append(resp.Schema, models.SchemaField{
					Name:     field.Name,
					Required: field.Required,
					Default:  field.Default,
					Options:  field.OneOf,
				})
			}
		}
	case flow.ResultTypeCreateEntry:
		resp.Title = result.Title
		resp.SerialNumber = result.UniqueID
	}

	return resp
}
