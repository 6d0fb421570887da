package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/identity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

// Handler serves the consumers of the saved-properties store: listing grids,
// the saved page and the navigation badge.
type Handler struct {
	session  *identity.Session
	store    *service.SavedStore
	catalog  *service.Catalog
	validate *validator.Validate
	log      logger.Logger
}

func NewHandler(session *identity.Session, store *service.SavedStore, catalog *service.Catalog, log logger.Logger) *Handler {
	return &Handler{
		session:  session,
		store:    store,
		catalog:  catalog,
		validate: validator.New(),
		log:      log.With("component", "http"),
	}
}

type signInRequest struct {
	Token string `json:"token" validate:"required"`
}

type searchRequest struct {
	Query string `validate:"max=200"`
	Page  int    `validate:"min=1,max=50"`
	Type  string `validate:"omitempty,max=40"`
	Sort  string `validate:"omitempty,oneof=relevance price-low price-high sqft"`
}

type assistantRequest struct {
	Query string `json:"query" validate:"required,max=500"`
}

type sessionResponse struct {
	User       *entity.UserRef `json:"user"`
	IsLoaded   bool            `json:"isLoaded"`
	IsSignedIn bool            `json:"isSignedIn"`
}

type snapshotResponse struct {
	State     service.State     `json:"state"`
	Items     []entity.Property `json:"items"`
	Count     int               `json:"count"`
	IsSyncing bool              `json:"isSyncing"`
	LastError *errorBody        `json:"lastError"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type savedStatusResponse struct {
	ID    entity.PropertyID `json:"id"`
	Saved bool              `json:"saved"`
}

type listingsResponse struct {
	ID      string            `json:"id,omitempty"`
	Query   string            `json:"query,omitempty"`
	Page    int               `json:"page,omitempty"`
	HasMore bool              `json:"hasMore"`
	Items   []json.RawMessage `json:"items"`
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{
		User:       h.session.CurrentUser(),
		IsLoaded:   h.session.IsLoaded(),
		IsSignedIn: h.session.IsSignedIn(),
	})
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.session.SignIn(r.Context(), req.Token); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.GetSession(w, r)
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.session.SignOut(r.Context(), "user request")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Featured(w http.ResponseWriter, r *http.Request) {
	items, err := h.withSavedFlag(h.catalog.Featured())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingsResponse{Items: items})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := searchRequest{Query: q.Get("q"), Page: 1, Type: q.Get("type"), Sort: q.Get("sort")}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, badRequest("page must be an integer"))
			return
		}
		req.Page = page
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.catalog.Search(r.Context(), service.SearchQuery{Query: req.Query, Page: req.Page, Type: req.Type, Sort: req.Sort})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.withSavedFlag(res.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingsResponse{ID: res.ID, Query: res.Query, Page: res.Page, HasMore: res.HasMore, Items: items})
}

func (h *Handler) Assist(w http.ResponseWriter, r *http.Request) {
	if !h.session.IsSignedIn() {
		h.writeError(w, r, service.ErrNotAuthenticated)
		return
	}
	var req assistantRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.Assist(req.Query))
}

func (h *Handler) GetSaved(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotResponse(h.store.Snapshot()))
}

func (h *Handler) GetSavedStatus(w http.ResponseWriter, r *http.Request) {
	id := entity.PropertyID(chi.URLParam(r, "id"))
	if id.IsZero() {
		h.writeError(w, r, service.ErrInvalidProperty)
		return
	}
	writeJSON(w, http.StatusOK, savedStatusResponse{ID: id, Saved: h.store.IsSaved(id)})
}

// Toggle accepts a full property, or just {"id": ...} for a listing the
// catalog has served.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, badRequest("request body too large or unreadable"))
		return
	}
	p, err := entity.ParseProperty(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(p.Fields) == 0 {
		if known, err := h.catalog.Lookup(p.ID); err == nil {
			p = known
		}
	}

	snap, err := h.store.Toggle(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Clear(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

func (h *Handler) withSavedFlag(items []entity.Property) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, p := range items {
		fields := make(map[string]json.RawMessage, len(p.Fields)+1)
		for k, v := range p.Fields {
			fields[k] = v
		}
		fields["saved"] = json.RawMessage(strconv.FormatBool(h.store.IsSaved(p.ID)))
		p.Fields = fields
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (h *Handler) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid request body")
	}
	return h.validate.Struct(dst)
}

func toSnapshotResponse(s service.Snapshot) snapshotResponse {
	resp := snapshotResponse{State: s.State, Items: s.Items, Count: s.Count(), IsSyncing: s.IsSyncing}
	if resp.Items == nil {
		resp.Items = []entity.Property{}
	}
	if s.LastError != nil {
		resp.LastError = &errorBody{Error: s.LastError.Error(), Kind: service.ClassifyError(s.LastError)}
	}
	return resp
}

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return badRequestError{msg: msg} }

func statusFor(err error) int {
	var validationErrs validator.ValidationErrors
	var badReq badRequestError
	switch {
	case errors.As(err, &badReq), errors.As(err, &validationErrs):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidProperty):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotAuthenticated),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPropertyNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRemoteRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrRemoteUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Errorw("request failed", "path", r.URL.Path, "status", code, "error", err)
	} else {
		h.log.Debugw("request rejected", "path", r.URL.Path, "status", code, "error", err)
	}
	kind := service.ClassifyError(err)
	if code == http.StatusBadRequest && kind == "unknown" {
		kind = "invalid_request"
	}
	writeJSON(w, code, errorBody{Error: err.Error(), Kind: kind})
}

// writeJSON never sends a success status with a body it failed to encode.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody{Error: "failed to encode response: " + err.Error(), Kind: "unknown"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}
