package www

import (
	"net/http"

	"github.com/sahilp2023/agrocyle-sub001/assignment"
)

func (h *Handlers) apiListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.engine.Orchestrator().ListRequests(r.Context(), principalFrom(r), assignment.RequestFilter{
		HubID:  queryInt(r, "hub_id", 0),
		Status: r.URL.Query().Get("status"),
		Limit:  int(queryInt(r, "limit", 100)),
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, reqs)
}

func (h *Handlers) apiCreateRequest(w http.ResponseWriter, r *http.Request) {
	var in assignment.NewRequest
	if err := decodeJSON(r, &in); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, created, err := h.engine.Orchestrator().CreateRequest(r.Context(), principalFrom(r), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	h.jsonStatus(w, code, req)
}

func (h *Handlers) apiGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.engine.Orchestrator().GetRequest(r.Context(), principalFrom(r), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, req)
}

func (h *Handlers) apiConfirmRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.engine.Orchestrator().ConfirmRequest(r.Context(), principalFrom(r), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, req)
}

func (h *Handlers) apiStartRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.engine.Orchestrator().StartRequest(r.Context(), principalFrom(r), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, req)
}

func (h *Handlers) apiCancelRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.engine.Orchestrator().CancelRequest(r.Context(), principalFrom(r), id, body.Reason)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, req)
}

func (h *Handlers) apiRescheduleRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		ScheduledDate string `json:"scheduled_date"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.engine.Orchestrator().RescheduleRequest(r.Context(), principalFrom(r), id, body.ScheduledDate)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, req)
}
