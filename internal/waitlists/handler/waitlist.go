package handler

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"waitgate/internal/waitlists/service"
	"waitgate/internal/waitlists/validator"
	httputil "waitgate/pkg/http"
	"waitgate/pkg/logger"
	"waitgate/pkg/middleware"
	"waitgate/pkg/model"
)

type WaitlistHandler struct {
	service        service.WaitlistService
	log            *logger.Logger
	requireSession func(http.Handler) http.Handler
}

// NewWaitlistHandler builds the waitlist routes. Unless sessionOptional is
// set, privileged routes reject requests without a session before reaching
// the service.
func NewWaitlistHandler(service service.WaitlistService, log *logger.Logger, sessionOptional bool) *WaitlistHandler {
	h := &WaitlistHandler{
		service: service,
		log:     log,
	}
	if !sessionOptional {
		h.requireSession = middleware.RequireSession(log)
	}
	return h
}

func (h *WaitlistHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var p validator.Payload
	if err := httputil.DecodeJSON(r, &p); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	wl, err := h.service.Create(r.Context(), p)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, wl); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *WaitlistHandler) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// The service authorizes before it validates the id.
	wl, err := h.service.Get(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}

	var data any
	if wl != nil {
		data = wl
	}
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", "Get", "operation", "WriteSuccess", "error", err)
	}
}

func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var p validator.Payload
	if err := httputil.DecodeJSON(r, &p); err != nil {
		h.writeError(w, "Join", err)
		return
	}

	u, err := h.service.Join(r.Context(), p)
	if err != nil {
		h.writeError(w, "Join", err)
		return
	}

	if err := httputil.WriteCreated(w, u); err != nil {
		h.log.Error("failed to write created response", "handler", "Join", "operation", "WriteCreated", "error", err)
	}
}

func (h *WaitlistHandler) Accept(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.decide(w, r, "Accept", h.service.Accept)
}

func (h *WaitlistHandler) Reject(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.decide(w, r, "Reject", h.service.Reject)
}

func (h *WaitlistHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	decide func(ctx context.Context, p validator.Payload) (*model.WaitlistUser, error),
) {
	var p validator.Payload
	if err := httputil.DecodeJSON(r, &p); err != nil {
		h.writeError(w, name, err)
		return
	}

	u, err := decide(r.Context(), p)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, u); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *WaitlistHandler) CheckAdmission(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var p validator.Payload
	if err := httputil.DecodeJSON(r, &p); err != nil {
		h.writeError(w, "CheckAdmission", err)
		return
	}

	admission, err := h.service.CheckAdmission(r.Context(), p)
	if err != nil {
		h.writeError(w, "CheckAdmission", err)
		return
	}

	if err := httputil.WriteSuccess(w, admission); err != nil {
		h.log.Error("failed to write success response", "handler", "CheckAdmission", "operation", "WriteSuccess", "error", err)
	}
}

func (h *WaitlistHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

// gated wraps handle with the session requirement.
func (h *WaitlistHandler) gated(handle httprouter.Handle) httprouter.Handle {
	if h.requireSession == nil {
		return handle
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		h.requireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(w, r, ps)
		})).ServeHTTP(w, r)
	}
}

func (h *WaitlistHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/waitlist/create", h.gated(h.Create))
	router.GET("/waitlist/get-waitlist", h.gated(h.Get))
	router.POST("/waitlist/accept-user", h.gated(h.Accept))
	router.POST("/waitlist/reject-user", h.gated(h.Reject))
	router.POST("/waitlist/join", h.Join)
	router.POST("/waitlist/check-admission", h.CheckAdmission)
}
