package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"assetline/internal/engine"
	"assetline/internal/engine/auth"
	"assetline/internal/repo"
	"assetline/internal/track"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"offer_conflict"`
	Message string         `json:"message" example:"an accepted offer already exists for this asset and source"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"source\":\"reo\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Assetline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the error envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Assetline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	var group huma.API = api
	if basePath != "" {
		group = huma.NewGroup(api, basePath)
	}

	registerDocs(router, basePath)
	registerHealth(group)
	registerAssets(group, cfg.Engine)
	registerOutcomes(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerOffers(group, cfg.Engine)
	registerScopes(group, cfg.Engine)
	registerMetrics(group, cfg.Engine)
	registerCalendar(group, cfg.Engine)
	registerBrokers(group, cfg.Engine)
	registerValuations(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerTracks(group)
	registerEvents(group, cfg.Engine)
	registerRBAC(group, cfg.Engine)
	registerKeys(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrOfferConflict) {
		return newAPIError(http.StatusConflict, "offer_conflict", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrScopeNotEligible) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "missing"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "must"),
		strings.Contains(lowered, "unknown"),
		strings.Contains(lowered, "belongs to a different"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func hasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

func principalFromRequest(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// requirePermission resolves the caller and checks the permission, first via
// token claims and then via the RBAC tables. When auth is disabled the
// middleware marks principals accordingly and every check passes.
func requirePermission(ctx context.Context, e engine.Engine, perm string) error {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return authErr
	}
	if principal.Source == "disabled" {
		return nil
	}
	if hasPermission(principal.Permissions, perm) {
		return nil
	}
	return e.Authorize(ctx, principal.ActorID, perm)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join("/", basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "healthz")
	devLoginPath := path.Join("/", basePath, "core/auth/dev-login") + "/"
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Assetline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAssets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-asset",
		Method:        http.MethodPost,
		Path:          "/am/assets/",
		Summary:       "Onboard asset",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAssetRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "assets.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.AssetCreateOptions{
			Address:           input.Body.Address,
			City:              input.Body.City,
			State:             input.Body.State,
			Zip:               input.Body.Zip,
			PropertyType:      input.Body.PropertyType,
			LoanNumber:        input.Body.LoanNumber,
			BorrowerName:      input.Body.BorrowerName,
			DelinquencyStatus: input.Body.DelinquencyStatus,
			ActorID:           actorID,
		}
		var convErr error
		set := func(dst *decimal.NullDecimal, src *Money) {
			if convErr != nil || src == nil {
				return
			}
			nd, err := src.NullDecimal()
			if err != nil {
				convErr = err
				return
			}
			*dst = nd
		}
		set(&opts.UPB, input.Body.UPB)
		set(&opts.TotalDebt, input.Body.TotalDebt)
		set(&opts.DeferredBalance, input.Body.DeferredBalance)
		set(&opts.AsIsValue, input.Body.AsIsValue)
		set(&opts.ARVValue, input.Body.ARVValue)
		if convErr != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", convErr.Error(), nil)
		}
		a, err := e.CreateAsset(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/am/assets/",
		Summary:     "List assets",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		State             string `query:"state"`
		PropertyType      string `query:"property_type"`
		DelinquencyStatus string `query:"delinquency_status"`
		Limit             int    `query:"limit" default:"50"`
		Cursor            string `query:"cursor"`
	}) (*struct {
		Body paginatedAssets `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		ts, idStr, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		var cursorHub int64
		if idStr != "" {
			cursorHub, err = strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
		}
		items, err := e.Repo.ListAssets(ctx, repo.AssetFilters{
			State:             input.State,
			PropertyType:      input.PropertyType,
			DelinquencyStatus: input.DelinquencyStatus,
			Limit:             limit + 1,
			CursorCreatedAt:   ts,
			CursorHubID:       cursorHub,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAssets{Items: []AssetResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, fmt.Sprintf("%d", last.HubID))
		}
		for _, a := range items {
			resp.Items = append(resp.Items, assetResponse(a))
		}
		return &struct {
			Body paginatedAssets `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-asset",
		Method:      http.MethodGet,
		Path:        "/am/assets/{hub_id}/",
		Summary:     "Get asset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		HubID int64 `path:"hub_id"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAsset(ctx, input.HubID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-asset",
		Method:      http.MethodPatch,
		Path:        "/am/assets/{hub_id}/",
		Summary:     "Update asset",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		HubID int64              `path:"hub_id"`
		Body  UpdateAssetRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "assets.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		body := rawBodyMap(ctx)
		opts := engine.AssetUpdateOptions{
			HubID:             input.HubID,
			Address:           clearableString(body, "address", input.Body.Address),
			City:              clearableString(body, "city", input.Body.City),
			State:             clearableString(body, "state", input.Body.State),
			Zip:               clearableString(body, "zip", input.Body.Zip),
			PropertyType:      clearableString(body, "property_type", input.Body.PropertyType),
			LoanNumber:        clearableString(body, "loan_number", input.Body.LoanNumber),
			BorrowerName:      clearableString(body, "borrower_name", input.Body.BorrowerName),
			DelinquencyStatus: clearableString(body, "delinquency_status", input.Body.DelinquencyStatus),
			ActorID:           actorID,
		}
		var convErr error
		patch := func(dst **decimal.NullDecimal, key string, src *Money) {
			if convErr != nil {
				return
			}
			nd, err := moneyPatch(body, key, src)
			if err != nil {
				convErr = err
				return
			}
			*dst = nd
		}
		patch(&opts.UPB, "upb", input.Body.UPB)
		patch(&opts.TotalDebt, "total_debt", input.Body.TotalDebt)
		patch(&opts.DeferredBalance, "deferred_balance", input.Body.DeferredBalance)
		patch(&opts.AsIsValue, "as_is_value", input.Body.AsIsValue)
		patch(&opts.ARVValue, "arv_value", input.Body.ARVValue)
		if convErr != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", convErr.Error(), nil)
		}
		a, err := e.UpdateAsset(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-asset",
		Method:      http.MethodDelete,
		Path:        "/am/assets/{hub_id}/",
		Summary:     "Delete asset",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		HubID int64 `path:"hub_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "assets.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAsset(ctx, input.HubID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerOutcomes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "ensure-outcome",
		Method:      http.MethodPost,
		Path:        "/am/outcomes/{track}/",
		Summary:     "Ensure outcome track",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Track string               `path:"track"`
		Body  EnsureOutcomeRequest `json:"body"`
	}) (*struct {
		Body OutcomeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.AssetHubID <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_hub_id is required", nil)
		}
		if err := requirePermission(ctx, e, "outcomes.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.EnsureOutcome(ctx, int64(input.Body.AssetHubID), input.Track, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OutcomeResponse `json:"body"`
		}{Body: outcomeResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-track-outcomes",
		Method:      http.MethodGet,
		Path:        "/am/outcomes/{track}/",
		Summary:     "List outcomes for one track",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Track      string `path:"track"`
		AssetHubID int64  `query:"asset_hub_id"`
		Status     string `query:"status" enum:"active,closed"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedOutcomes `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		trackID, err := track.Parse(input.Track)
		if err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListOutcomes(ctx, repo.OutcomeFilters{
			HubID:           input.AssetHubID,
			Track:           trackID,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: ts,
			CursorID:        id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedOutcomes{Items: []OutcomeResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, o := range items {
			resp.Items = append(resp.Items, outcomeResponse(o))
		}
		return &struct {
			Body paginatedOutcomes `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-outcomes",
		Method:      http.MethodGet,
		Path:        "/am/outcomes/",
		Summary:     "List outcomes",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssetHubID int64  `query:"asset_hub_id"`
		Track      string `query:"track"`
		Status     string `query:"status" enum:"active,closed"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedOutcomes `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListOutcomes(ctx, repo.OutcomeFilters{
			HubID:           input.AssetHubID,
			Track:           input.Track,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: ts,
			CursorID:        id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedOutcomes{Items: []OutcomeResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, o := range items {
			resp.Items = append(resp.Items, outcomeResponse(o))
		}
		return &struct {
			Body paginatedOutcomes `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-outcome",
		Method:      http.MethodPatch,
		Path:        "/am/outcomes/{track}/{hub_id}/",
		Summary:     "Set outcome status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Track string               `path:"track"`
		HubID int64                `path:"hub_id"`
		Body  UpdateOutcomeRequest `json:"body"`
	}) (*struct {
		Body OutcomeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "outcomes.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.SetOutcomeStatus(ctx, input.HubID, input.Track, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OutcomeResponse `json:"body"`
		}{Body: outcomeResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-outcome",
		Method:      http.MethodDelete,
		Path:        "/am/outcomes/{track}/{hub_id}/",
		Summary:     "Delete outcome track",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Track string `path:"track"`
		HubID int64  `path:"hub_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "outcomes.delete"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteOutcome(ctx, input.HubID, input.Track, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/am/outcomes/tasks/",
		Summary:       "Create stage task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.AssetHubID <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_hub_id is required", nil)
		}
		if err := requirePermission(ctx, e, "tasks.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			HubID:        int64(input.Body.AssetHubID),
			Track:        input.Body.Track,
			TaskType:     input.Body.TaskType,
			AssigneeID:   stringOrEmpty(input.Body.AssigneeID),
			Notes:        stringOrEmpty(input.Body.Notes),
			ScheduledFor: stringOrEmpty(input.Body.ScheduledFor),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/am/outcomes/tasks/",
		Summary:     "List stage tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssetHubID int64  `query:"asset_hub_id"`
		OutcomeID  string `query:"outcome_id"`
		Track      string `query:"track"`
		TaskType   string `query:"task_type"`
		Status     string `query:"status" enum:"open,done"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		outcomeID := input.OutcomeID
		if input.Track != "" {
			if input.AssetHubID <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_hub_id is required with track", nil)
			}
			o, err := e.Repo.GetOutcomeByTrack(ctx, input.AssetHubID, input.Track)
			if err != nil {
				return nil, handleError(err)
			}
			outcomeID = o.ID
		}
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			OutcomeID:       outcomeID,
			HubID:           input.AssetHubID,
			TaskType:        input.TaskType,
			Status:          input.Status,
			AssigneeID:      input.AssigneeID,
			Limit:           limit + 1,
			CursorCreatedAt: ts,
			CursorID:        id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, t := range items {
			resp.Items = append(resp.Items, taskResponse(t))
		}
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/am/outcomes/tasks/{id}/",
		Summary:     "Update stage task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "tasks.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		body := rawBodyMap(ctx)
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:           input.ID,
			TaskType:     input.Body.TaskType,
			Status:       input.Body.Status,
			AssigneeID:   clearableString(body, "assignee_id", input.Body.AssigneeID),
			Notes:        input.Body.Notes,
			ScheduledFor: clearableString(body, "scheduled_for", input.Body.ScheduledFor),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/am/outcomes/tasks/{id}/",
		Summary:     "Delete stage task",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "tasks.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerOffers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-offer",
		Method:        http.MethodPost,
		Path:          "/am/outcomes/offers/",
		Summary:       "Record offer",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOfferRequest `json:"body"`
	}) (*struct {
		Body OfferResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.AssetHubID <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_hub_id is required", nil)
		}
		perm := "offers.write"
		if input.Body.Status == track.OfferAccepted {
			perm = "offers.accept"
		}
		if err := requirePermission(ctx, e, perm); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		price, err := input.Body.Price.Decimal()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		o, err := e.CreateOffer(ctx, engine.OfferCreateOptions{
			HubID:      int64(input.Body.AssetHubID),
			Source:     input.Body.Source,
			Status:     input.Body.Status,
			Price:      price,
			BuyerName:  input.Body.BuyerName,
			BrokerID:   stringOrEmpty(input.Body.BrokerID),
			Notes:      input.Body.Notes,
			ReceivedOn: stringOrEmpty(input.Body.ReceivedOn),
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OfferResponse `json:"body"`
		}{Body: offerResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-offers",
		Method:      http.MethodGet,
		Path:        "/am/outcomes/offers/",
		Summary:     "List offers",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssetHubID int64  `query:"asset_hub_id"`
		Source     string `query:"source" enum:"short_sale,reo,note_sale"`
		Status     string `query:"status" enum:"pending,accepted,rejected,countered,withdrawn"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedOffers `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListOffers(ctx, repo.OfferFilters{
			HubID:           input.AssetHubID,
			Source:          input.Source,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: ts,
			CursorID:        id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedOffers{Items: []OfferResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, o := range items {
			resp.Items = append(resp.Items, offerResponse(o))
		}
		return &struct {
			Body paginatedOffers `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-offer",
		Method:      http.MethodPatch,
		Path:        "/am/outcomes/offers/{id}/",
		Summary:     "Update offer",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateOfferRequest `json:"body"`
	}) (*struct {
		Body OfferResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		perm := "offers.write"
		if input.Body.Status != nil && *input.Body.Status == track.OfferAccepted {
			perm = "offers.accept"
		}
		if err := requirePermission(ctx, e, perm); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		body := rawBodyMap(ctx)
		opts := engine.OfferUpdateOptions{
			ID:         input.ID,
			Status:     input.Body.Status,
			BuyerName:  input.Body.BuyerName,
			BrokerID:   clearableString(body, "broker_id", input.Body.BrokerID),
			Notes:      input.Body.Notes,
			ReceivedOn: clearableString(body, "received_on", input.Body.ReceivedOn),
			ActorID:    actorID,
		}
		if input.Body.Price != nil {
			price, err := input.Body.Price.Decimal()
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
			opts.Price = &price
		}
		o, err := e.UpdateOffer(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OfferResponse `json:"body"`
		}{Body: offerResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-offer",
		Method:      http.MethodPost,
		Path:        "/am/outcomes/offers/{id}/accept/",
		Summary:     "Accept offer",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body OfferResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "offers.accept"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.AcceptOffer(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OfferResponse `json:"body"`
		}{Body: offerResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-offer",
		Method:      http.MethodDelete,
		Path:        "/am/outcomes/offers/{id}/",
		Summary:     "Delete offer",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "offers.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteOffer(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerScopes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-scope",
		Method:        http.MethodPost,
		Path:          "/am/outcomes/reo-scopes/",
		Summary:       "Create REO scope",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateScopeRequest `json:"body"`
	}) (*struct {
		Body ScopeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "scopes.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cost, err := input.Body.Cost.Decimal()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		s, err := e.CreateScope(ctx, engine.ScopeCreateOptions{
			TaskID:       input.Body.TaskID,
			VendorID:     stringOrEmpty(input.Body.VendorID),
			Description:  input.Body.Description,
			Cost:         cost,
			ScheduledFor: stringOrEmpty(input.Body.ScheduledFor),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScopeResponse `json:"body"`
		}{Body: scopeResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-scopes",
		Method:      http.MethodGet,
		Path:        "/am/outcomes/reo-scopes/",
		Summary:     "List REO scopes",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TaskID     string `query:"task_id"`
		AssetHubID int64  `query:"asset_hub_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedScopes `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListScopes(ctx, repo.ScopeFilters{
			TaskID:          input.TaskID,
			HubID:           input.AssetHubID,
			Limit:           limit + 1,
			CursorCreatedAt: ts,
			CursorID:        id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedScopes{Items: []ScopeResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, s := range items {
			resp.Items = append(resp.Items, scopeResponse(s))
		}
		return &struct {
			Body paginatedScopes `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-scope",
		Method:      http.MethodPatch,
		Path:        "/am/outcomes/reo-scopes/{id}/",
		Summary:     "Update REO scope",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateScopeRequest `json:"body"`
	}) (*struct {
		Body ScopeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "scopes.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		body := rawBodyMap(ctx)
		opts := engine.ScopeUpdateOptions{
			ID:           input.ID,
			VendorID:     clearableString(body, "vendor_id", input.Body.VendorID),
			Description:  input.Body.Description,
			ScheduledFor: clearableString(body, "scheduled_for", input.Body.ScheduledFor),
			CompletedOn:  clearableString(body, "completed_on", input.Body.CompletedOn),
			ActorID:      actorID,
		}
		if input.Body.Cost != nil {
			cost, err := input.Body.Cost.Decimal()
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
			opts.Cost = &cost
		}
		s, err := e.UpdateScope(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScopeResponse `json:"body"`
		}{Body: scopeResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-scope",
		Method:      http.MethodDelete,
		Path:        "/am/outcomes/reo-scopes/{id}/",
		Summary:     "Delete REO scope",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "scopes.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteScope(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMetrics(api huma.API, e engine.Engine) {
	type hubMetricsBody struct {
		AssetHubID int64                  `json:"asset_hub_id"`
		Tracks     []TrackMetricsResponse `json:"tracks"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "track-metrics",
		Method:      http.MethodGet,
		Path:        "/am/outcomes/task-metrics/",
		Summary:     "Per-track task metrics",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		AssetHubID int64 `query:"asset_hub_id"`
	}) (*struct {
		Body hubMetricsBody `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		if input.AssetHubID <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_hub_id is required", nil)
		}
		metrics, err := e.TrackMetricsForHub(ctx, input.AssetHubID)
		if err != nil {
			return nil, handleError(err)
		}
		body := hubMetricsBody{AssetHubID: input.AssetHubID, Tracks: []TrackMetricsResponse{}}
		for _, m := range metrics {
			body.Tracks = append(body.Tracks, metricsResponse(m))
		}
		return &struct {
			Body hubMetricsBody `json:"body"`
		}{Body: body}, nil
	})
}

func registerCalendar(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-calendar-event",
		Method:        http.MethodPost,
		Path:          "/core/calendar/events/custom/",
		Summary:       "Create note, follow-up, or todo",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCalendarEventRequest `json:"body"`
	}) (*struct {
		Body CalendarEventResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.AssetHubID <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_hub_id is required", nil)
		}
		if err := requirePermission(ctx, e, "calendar.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ce, err := e.CreateCalendarEvent(ctx, engine.CalendarCreateOptions{
			HubID:        int64(input.Body.AssetHubID),
			Kind:         input.Body.Kind,
			Body:         input.Body.Body,
			OutcomeTrack: stringOrEmpty(input.Body.OutcomeTrack),
			TaskID:       stringOrEmpty(input.Body.TaskID),
			DueOn:        stringOrEmpty(input.Body.DueOn),
			AssigneeID:   stringOrEmpty(input.Body.AssigneeID),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CalendarEventResponse `json:"body"`
		}{Body: calendarEventResponse(ce)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-calendar-events",
		Method:      http.MethodGet,
		Path:        "/core/calendar/events/custom/",
		Summary:     "List notes and calendar items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssetHubID int64  `query:"asset_hub_id"`
		Kind       string `query:"kind" enum:"note,follow_up,todo"`
		AssigneeID string `query:"assignee_id"`
		Done       string `query:"done" enum:"true,false"`
		DueBefore  string `query:"due_before"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedCalendarEvents `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		var done *bool
		if input.Done != "" {
			v := input.Done == "true"
			done = &v
		}
		items, err := e.Repo.ListCalendarEvents(ctx, repo.CalendarFilters{
			HubID:           input.AssetHubID,
			Kind:            input.Kind,
			AssigneeID:      input.AssigneeID,
			Done:            done,
			DueBefore:       input.DueBefore,
			Limit:           limit + 1,
			CursorCreatedAt: ts,
			CursorID:        id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedCalendarEvents{Items: []CalendarEventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, ce := range items {
			resp.Items = append(resp.Items, calendarEventResponse(ce))
		}
		return &struct {
			Body paginatedCalendarEvents `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-calendar-event",
		Method:      http.MethodPatch,
		Path:        "/core/calendar/events/custom/{id}/",
		Summary:     "Update calendar item",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                     `path:"id"`
		Body UpdateCalendarEventRequest `json:"body"`
	}) (*struct {
		Body CalendarEventResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "calendar.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		body := rawBodyMap(ctx)
		ce, err := e.UpdateCalendarEvent(ctx, engine.CalendarUpdateOptions{
			ID:         input.ID,
			Body:       input.Body.Body,
			DueOn:      clearableString(body, "due_on", input.Body.DueOn),
			AssigneeID: clearableString(body, "assignee_id", input.Body.AssigneeID),
			Done:       input.Body.Done,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CalendarEventResponse `json:"body"`
		}{Body: calendarEventResponse(ce)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-calendar-event",
		Method:      http.MethodDelete,
		Path:        "/core/calendar/events/custom/{id}/",
		Summary:     "Delete calendar item",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "calendar.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteCalendarEvent(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerBrokers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-broker",
		Method:        http.MethodPost,
		Path:          "/acq/brokers/",
		Summary:       "Add broker or vendor",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateBrokerRequest `json:"body"`
	}) (*struct {
		Body BrokerResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "brokers.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.CreateBroker(ctx, engine.BrokerCreateOptions{
			Kind:    input.Body.Kind,
			Name:    input.Body.Name,
			Firm:    input.Body.Firm,
			Email:   input.Body.Email,
			Phone:   input.Body.Phone,
			Market:  input.Body.Market,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BrokerResponse `json:"body"`
		}{Body: brokerResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-brokers",
		Method:      http.MethodGet,
		Path:        "/acq/brokers/",
		Summary:     "List brokers",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Kind   string `query:"kind" enum:"broker,vendor,trading_partner"`
		Market string `query:"market"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedBrokers `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListBrokers(ctx, repo.BrokerFilters{
			Kind:            input.Kind,
			Market:          input.Market,
			Limit:           limit + 1,
			CursorCreatedAt: ts,
			CursorID:        id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedBrokers{Items: []BrokerResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, b := range items {
			resp.Items = append(resp.Items, brokerResponse(b))
		}
		return &struct {
			Body paginatedBrokers `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-broker",
		Method:      http.MethodGet,
		Path:        "/acq/brokers/{id}/",
		Summary:     "Get broker",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body BrokerResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		b, err := e.Repo.GetBroker(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BrokerResponse `json:"body"`
		}{Body: brokerResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-broker",
		Method:      http.MethodPatch,
		Path:        "/acq/brokers/{id}/",
		Summary:     "Update broker",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateBrokerRequest `json:"body"`
	}) (*struct {
		Body BrokerResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "brokers.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.UpdateBroker(ctx, engine.BrokerUpdateOptions{
			ID:      input.ID,
			Name:    input.Body.Name,
			Firm:    input.Body.Firm,
			Email:   input.Body.Email,
			Phone:   input.Body.Phone,
			Market:  input.Body.Market,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BrokerResponse `json:"body"`
		}{Body: brokerResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-broker",
		Method:      http.MethodDelete,
		Path:        "/acq/brokers/{id}/",
		Summary:     "Delete broker",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "brokers.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteBroker(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerValuations(api huma.API, e engine.Engine) {
	type valuationList struct {
		Items []ValuationResponse `json:"items"`
	}
	huma.Register(api, huma.Operation{
		OperationID:   "record-valuation",
		Method:        http.MethodPost,
		Path:          "/am/valuations/",
		Summary:       "Record valuation",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateValuationRequest `json:"body"`
	}) (*struct {
		Body ValuationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.AssetHubID <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_hub_id is required", nil)
		}
		if err := requirePermission(ctx, e, "valuations.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		value, err := input.Body.Value.Decimal()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		v, err := e.RecordValuation(ctx, engine.ValuationCreateOptions{
			HubID:   int64(input.Body.AssetHubID),
			Kind:    input.Body.Kind,
			Value:   value,
			AsOf:    input.Body.AsOf,
			Source:  input.Body.Source,
			Notes:   input.Body.Notes,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValuationResponse `json:"body"`
		}{Body: valuationResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-valuations",
		Method:      http.MethodGet,
		Path:        "/am/valuations/",
		Summary:     "List valuations",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssetHubID int64  `query:"asset_hub_id"`
		Kind       string `query:"kind" enum:"bpo_asis,bpo_arv,appraisal"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body valuationList `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListValuations(ctx, repo.ValuationFilters{
			HubID: input.AssetHubID,
			Kind:  input.Kind,
			Limit: normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := valuationList{Items: []ValuationResponse{}}
		for _, v := range items {
			resp.Items = append(resp.Items, valuationResponse(v))
		}
		return &struct {
			Body valuationList `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	type assignmentList struct {
		Items []AssignmentResponse `json:"items"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "set-assignment",
		Method:      http.MethodPut,
		Path:        "/am/assignments/",
		Summary:     "Set duty assignment",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SetAssignmentRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.AssetHubID <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_hub_id is required", nil)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if err := requirePermission(ctx, e, "assignments.write"); err != nil {
			return nil, handleError(err)
		}
		byActorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		asg, err := e.SetAssignment(ctx, int64(input.Body.AssetHubID), input.Body.ActorID, input.Body.Duty, byActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(asg)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/am/assignments/",
		Summary:     "List duty assignments",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssetHubID int64  `query:"asset_hub_id"`
		ActorID    string `query:"actor_id"`
	}) (*struct {
		Body assignmentList `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAssignments(ctx, input.AssetHubID, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := assignmentList{Items: []AssignmentResponse{}}
		for _, asg := range items {
			resp.Items = append(resp.Items, assignmentResponse(asg))
		}
		return &struct {
			Body assignmentList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-assignment",
		Method:      http.MethodDelete,
		Path:        "/am/assignments/",
		Summary:     "Clear duty assignment",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		AssetHubID int64  `query:"asset_hub_id"`
		ActorID    string `query:"actor_id"`
	}) (*struct{}, error) {
		if input.AssetHubID <= 0 || input.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_hub_id and actor_id are required", nil)
		}
		if err := requirePermission(ctx, e, "assignments.write"); err != nil {
			return nil, handleError(err)
		}
		byActorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ClearAssignment(ctx, input.AssetHubID, input.ActorID, byActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTracks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "track-registry",
		Method:      http.MethodGet,
		Path:        "/core/tracks/",
		Summary:     "Track and badge registry",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RegistryResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body RegistryResponse `json:"body"`
		}{Body: registryResponse()}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/core/events/",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssetHubID int64  `query:"asset_hub_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"asset,outcome,task,offer,scope,calendar_event,broker,valuation,assignment,actor,rbac,api_key"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.AssetHubID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRBAC(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/core/rbac/roles/grant/",
		Summary:     "Grant role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ActorID == "" || input.Body.RoleID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and role_id are required", nil)
		}
		if err := requirePermission(ctx, e, "rbac.admin"); err != nil {
			return nil, handleError(err)
		}
		byActorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, input.Body.ActorID, input.Body.RoleID, byActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodPost,
		Path:        "/core/rbac/roles/revoke/",
		Summary:     "Revoke role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ActorID == "" || input.Body.RoleID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and role_id are required", nil)
		}
		if err := requirePermission(ctx, e, "rbac.admin"); err != nil {
			return nil, handleError(err)
		}
		byActorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, input.Body.ActorID, input.Body.RoleID, byActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerKeys(api huma.API, e engine.Engine) {
	type keyList struct {
		Items []KeyResponse `json:"items"`
	}
	huma.Register(api, huma.Operation{
		OperationID:   "create-key",
		Method:        http.MethodPost,
		Path:          "/core/keys/",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateKeyRequest `json:"body"`
	}) (*struct {
		Body KeyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if err := requirePermission(ctx, e, "keys.admin"); err != nil {
			return nil, handleError(err)
		}
		byActorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw, key, err := e.CreateAPIKey(ctx, input.Body.ActorID, input.Body.Name, byActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body KeyResponse `json:"body"`
		}{Body: KeyResponse{
			ID:        key.ID,
			ActorID:   key.ActorID,
			Name:      key.Name,
			Key:       raw,
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-keys",
		Method:      http.MethodGet,
		Path:        "/core/keys/",
		Summary:     "List API keys",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body keyList `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "keys.admin"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := keyList{Items: []KeyResponse{}}
		for _, k := range items {
			resp.Items = append(resp.Items, KeyResponse{
				ID:        k.ID,
				ActorID:   k.ActorID,
				Name:      k.Name,
				CreatedAt: k.CreatedAt,
			})
		}
		return &struct {
			Body keyList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-key",
		Method:      http.MethodDelete,
		Path:        "/core/keys/{id}/",
		Summary:     "Revoke API key",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "keys.admin"); err != nil {
			return nil, handleError(err)
		}
		byActorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, input.ID, byActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/core/me/",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles := principal.Roles
		perms := principal.Permissions
		if len(perms) == 0 {
			if who, err := e.WhoAmI(ctx, principal.ActorID); err == nil {
				if len(roles) == 0 {
					roles = who.Roles
				}
				perms = who.Permissions
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			Roles:       nonNilSlice(roles),
			Permissions: nonNilSlice(perms),
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/core/auth/dev-login/",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles, 24*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	if inner, ok := outer["body"]; ok {
		var innerMap map[string]json.RawMessage
		if err := json.Unmarshal(inner, &innerMap); err == nil {
			return innerMap
		}
	}
	return outer
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
}

// clearableString maps an absent key to "leave untouched" and an explicit JSON
// null to "clear the field", which the engine reads as a pointer to "".
func clearableString(body map[string]json.RawMessage, key string, val *string) *string {
	raw, ok := body[key]
	if !ok {
		return val
	}
	if isNullRaw(raw) {
		empty := ""
		return &empty
	}
	return val
}

// moneyPatch resolves a PATCH money field: absent means untouched, null means
// clear, anything else parses as a decimal.
func moneyPatch(body map[string]json.RawMessage, key string, val *Money) (*decimal.NullDecimal, error) {
	raw, ok := body[key]
	if !ok {
		return nil, nil
	}
	if isNullRaw(raw) {
		return &decimal.NullDecimal{}, nil
	}
	if val == nil {
		return nil, nil
	}
	nd, err := val.NullDecimal()
	if err != nil {
		return nil, err
	}
	return &nd, nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
