package router

import (
	"errors"

	"github.com/compozy/blockgate/engine/admission"
	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultLimit    = 50
	maxLimit        = 100
	schemaCacheSize = 256
)

type Handler struct {
	catalog *block.Catalog
	schemas *lru.Cache[string, *block.Schema]
}

func NewHandler(catalog *block.Catalog) (*Handler, error) {
	cache, err := lru.New[string, *block.Schema](schemaCacheSize)
	if err != nil {
		return nil, err
	}
	return &Handler{catalog: catalog, schemas: cache}, nil
}

func Register(group *gin.RouterGroup, adm *admission.Admission, h *Handler) {
	blocks := group.Group("/blocks")
	blocks.GET("", adm.Handle(servicekey.ScopeBlocksList, reqctx.Options{}, h.List)...)
	blocks.GET("/:blockType/schema", adm.Handle(servicekey.ScopeBlocksList, reqctx.Options{}, h.Schema)...)
}

type ListResponse struct {
	Blocks []block.Capability `json:"blocks"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// List handles GET /blocks.
func (h *Handler) List(c *gin.Context) {
	fields := map[string]string{}
	limit, ok := router.LimitOrDefault(c.Query("limit"), defaultLimit, maxLimit)
	if !ok {
		fields["limit"] = "must be a positive integer"
	}
	offset, ok := router.OffsetOrZero(c.Query("offset"))
	if !ok {
		fields["offset"] = "must be a non-negative integer"
	}
	includeHidden, ok := router.BoolOrDefault(c.Query("includeHidden"), false)
	if !ok {
		fields["includeHidden"] = "must be a boolean"
	}
	if len(fields) > 0 {
		router.RespondWithError(c, router.InvalidParams("Invalid query parameters", fields))
		return
	}
	page, total := h.catalog.List(block.ListFilter{
		Category:      c.Query("category"),
		Search:        c.Query("search"),
		IncludeHidden: includeHidden,
		Limit:         limit,
		Offset:        offset,
	})
	out := make([]block.Capability, 0, len(page))
	for _, d := range page {
		out = append(out, d.Capability())
	}
	router.RespondOK(c, ListResponse{Blocks: out, Total: total, Limit: limit, Offset: offset})
}

// Schema handles GET /blocks/:blockType/schema.
func (h *Handler) Schema(c *gin.Context) {
	d, err := h.catalog.Resolve(c.Param("blockType"))
	if err != nil {
		router.RespondWithError(c, ToAPIError(err))
		return
	}
	schema, ok := h.schemas.Get(d.Type)
	if !ok {
		schema = d.Schema()
		h.schemas.Add(d.Type, schema)
	}
	router.RespondOK(c, schema)
}

// ToAPIError maps resolution failures onto INVALID_BLOCK_TYPE.
func ToAPIError(err error) *router.APIError {
	if errors.Is(err, block.ErrUnknownBlock) || errors.Is(err, block.ErrNoAction) {
		return router.NewAPIError(router.ErrInvalidBlockTypeCode, "Invalid block type").Wrap(err)
	}
	return router.Internal(err)
}
