package router

import (
	"errors"
	"net/http"
	"strings"

	"github.com/compozy/blockgate/engine/admission"
	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/compozy/blockgate/engine/userlink"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	repo     userlink.Repository
	seeder   *userlink.Seeder
	settings userlink.Settings
	provider string
}

func NewHandler(repo userlink.Repository, seeder *userlink.Seeder, settings userlink.Settings, provider string) *Handler {
	return &Handler{repo: repo, seeder: seeder, settings: settings, provider: provider}
}

// Register mounts the user routes under group.
func Register(group *gin.RouterGroup, adm *admission.Admission, h *Handler) {
	users := group.Group("/users")
	users.POST("/provision", adm.Handle(servicekey.ScopeUsersProvision, reqctx.Options{}, h.Provision)...)
	users.GET("/:canvasUserId", adm.Handle(servicekey.ScopeUsersRead, reqctx.Options{}, h.Get)...)
}

type ProvisionRequest struct {
	CanvasUserID      string         `json:"canvasUserId"      binding:"required"`
	Email             string         `json:"email"             binding:"required,email"`
	Name              string         `json:"name"              binding:"omitempty,max=200"`
	CanvasWorkspaceID string         `json:"canvasWorkspaceId"`
	Metadata          map[string]any `json:"metadata"`
}

// Provision handles POST /users/provision.
func (h *Handler) Provision(c *gin.Context) {
	var req ProvisionRequest
	apiErr := router.BindJSON(c, &req)
	userID, workspaceID, idFields := canonicalIDs(&req)
	if apiErr != nil || len(idFields) > 0 {
		router.RespondWithError(c, withFieldErrors(apiErr, idFields))
		return
	}
	if workspaceID == "" {
		if g, ok := reqctx.FromContext(c.Request.Context()); ok {
			workspaceID = g.ExternalWorkspaceID
		}
	}
	res, err := userlink.NewProvision(h.repo, h.seeder, h.settings, &userlink.ProvisionInput{
		Provider:            h.provider,
		ExternalUserID:      userID,
		Email:               req.Email,
		Name:                req.Name,
		ExternalWorkspaceID: workspaceID,
		Metadata:            req.Metadata,
	}).Execute(c.Request.Context())
	if err != nil {
		router.RespondWithError(c, toAPIError(err))
		return
	}
	status := http.StatusCreated
	if res.AlreadyExisted {
		status = http.StatusConflict
	}
	router.RespondWithData(c, status, res)
}

// Get handles GET /users/:canvasUserId.
func (h *Handler) Get(c *gin.Context) {
	externalID, ok := reqctx.CanonicalID(c.Param("canvasUserId"))
	if !ok {
		router.RespondWithError(c, router.InvalidParams("Invalid user id", map[string]string{
			"canvasUserId": "must be a valid UUID",
		}))
		return
	}
	res, err := userlink.NewLookup(h.repo, h.provider, externalID).Execute(c.Request.Context())
	if err != nil {
		router.RespondWithError(c, toAPIError(err))
		return
	}
	router.RespondOK(c, res)
}

// canonicalIDs accepts UUIDs in any case and returns their canonical form.
func canonicalIDs(req *ProvisionRequest) (string, string, map[string]string) {
	fields := map[string]string{}
	userID, ok := reqctx.CanonicalID(req.CanvasUserID)
	if !ok {
		fields["canvasUserId"] = "must be a valid UUID"
	}
	var workspaceID string
	if strings.TrimSpace(req.CanvasWorkspaceID) != "" {
		if workspaceID, ok = reqctx.CanonicalID(req.CanvasWorkspaceID); !ok {
			fields["canvasWorkspaceId"] = "must be a valid UUID"
		}
	}
	return userID, workspaceID, fields
}

// withFieldErrors folds identifier errors into a binding failure so one
// response lists every bad field. Malformed bodies are reported as is.
func withFieldErrors(apiErr *router.APIError, fields map[string]string) *router.APIError {
	if apiErr == nil {
		return router.InvalidParams("Invalid request body", fields)
	}
	details, ok := apiErr.Details.(map[string]string)
	if !ok {
		return apiErr
	}
	if _, malformed := details["body"]; malformed {
		return apiErr
	}
	for field, msg := range fields {
		if _, set := details[field]; !set {
			details[field] = msg
		}
	}
	return apiErr
}

func toAPIError(err error) *router.APIError {
	switch {
	case errors.Is(err, userlink.ErrLinkNotFound):
		return router.NewAPIError(router.ErrUserNotProvisionedCode, "User not provisioned")
	case errors.Is(err, userlink.ErrUserExists):
		return router.NewAPIError(router.ErrUserExistsCode, "User was provisioned concurrently, please retry").Wrap(err)
	default:
		return router.Internal(err)
	}
}
