package router

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/compozy/blockgate/engine/admission"
	"github.com/compozy/blockgate/engine/execution"
	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc        *execution.Service
	minTimeout time.Duration
	maxTimeout time.Duration
}

func NewHandler(svc *execution.Service, cfg *config.ExecutionConfig) *Handler {
	resolved := execution.ResolveConfig(cfg)
	return &Handler{svc: svc, minTimeout: resolved.MinTimeout, maxTimeout: resolved.MaxTimeout}
}

func Register(group *gin.RouterGroup, adm *admission.Admission, h *Handler) {
	group.POST("/execute", adm.Handle(servicekey.ScopeBlocksExecute, reqctx.Options{RequireUser: true}, h.Execute)...)
	group.GET("/executions/:executionId", adm.Handle(servicekey.ScopeBlocksExecute, reqctx.Options{}, h.Status)...)
}

type ExecuteContext struct {
	WorkflowID  string `json:"workflowId"  binding:"omitempty,max=255"`
	ExecutionID string `json:"executionId" binding:"omitempty,max=255"`
	NodeID      string `json:"nodeId"      binding:"omitempty,max=255"`
}

type ExecuteOptions struct {
	// Timeout is in milliseconds.
	Timeout        *int64 `json:"timeout"`
	RetryOnFailure bool   `json:"retryOnFailure"`
}

type ExecuteRequest struct {
	BlockType    string          `json:"blockType"    binding:"required"`
	Params       map[string]any  `json:"params"`
	Inputs       map[string]any  `json:"inputs"`
	BlockVersion string          `json:"blockVersion"`
	Context      *ExecuteContext `json:"context"`
	Options      *ExecuteOptions `json:"options"`
}

// Execute handles POST /execute.
func (h *Handler) Execute(c *gin.Context) {
	var body ExecuteRequest
	if apiErr := router.BindJSON(c, &body); apiErr != nil {
		router.RespondWithError(c, apiErr)
		return
	}
	req, apiErr := h.toRequest(&body)
	if apiErr != nil {
		router.RespondWithError(c, apiErr)
		return
	}
	g, ok := reqctx.FromContext(c.Request.Context())
	if !ok {
		router.RespondWithError(c, router.Internal(errors.New("gateway context missing")))
		return
	}
	reply, err := h.svc.Execute(c.Request.Context(), g, req)
	if err != nil {
		router.RespondWithError(c, ToAPIError(err))
		return
	}
	respond(c, reply)
}

// Status handles GET /executions/:executionId.
func (h *Handler) Status(c *gin.Context) {
	executionID := strings.TrimSpace(c.Param("executionId"))
	g, ok := reqctx.FromContext(c.Request.Context())
	if !ok {
		router.RespondWithError(c, router.Internal(errors.New("gateway context missing")))
		return
	}
	reply, err := h.svc.Status(c.Request.Context(), g, executionID)
	if err != nil {
		router.RespondWithError(c, ToAPIError(err))
		return
	}
	respond(c, reply)
}

func (h *Handler) toRequest(body *ExecuteRequest) (*execution.Request, *router.APIError) {
	if body.Params == nil && body.Inputs == nil {
		return nil, router.InvalidParams("Invalid request body", map[string]string{
			"params": "params or inputs is required",
		})
	}
	params := make(map[string]any, len(body.Inputs)+len(body.Params))
	maps.Copy(params, body.Inputs)
	maps.Copy(params, body.Params)
	req := &execution.Request{
		BlockType:    strings.TrimSpace(body.BlockType),
		BlockVersion: body.BlockVersion,
		Params:       params,
	}
	if body.Context != nil {
		req.WorkflowID = body.Context.WorkflowID
		req.ExecutionID = body.Context.ExecutionID
		req.NodeID = body.Context.NodeID
	}
	if body.Options != nil {
		req.RetryOnFailure = body.Options.RetryOnFailure
		if body.Options.Timeout != nil {
			ms := *body.Options.Timeout
			if ms < h.minTimeout.Milliseconds() || ms > h.maxTimeout.Milliseconds() {
				return nil, router.InvalidParams("Invalid request body", map[string]string{
					"timeout": fmt.Sprintf("must be between %d and %d milliseconds",
						h.minTimeout.Milliseconds(), h.maxTimeout.Milliseconds()),
				})
			}
			req.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return req, nil
}

func respond(c *gin.Context, reply *execution.Reply) {
	if reply.Running != nil {
		router.RespondWithData(c, http.StatusAccepted, reply.Running)
		return
	}
	router.RespondOK(c, reply.Completed)
}

// ToAPIError maps execution failures onto the error envelope.
func ToAPIError(err error) *router.APIError {
	var failure *execution.Failure
	if errors.As(err, &failure) {
		return failure.APIError()
	}
	return router.AsAPIError(err)
}
