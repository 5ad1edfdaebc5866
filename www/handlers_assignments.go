package www

import (
	"encoding/json"
	"net/http"

	"github.com/sahilp2023/agrocyle-sub001/assignment"
	"github.com/sahilp2023/agrocyle-sub001/store"
)

func (h *Handlers) apiListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Orchestrator().ListAssignments(r.Context(), principalFrom(r), store.AssignmentFilter{
		HubID:      queryInt(r, "hub_id", 0),
		OperatorID: queryInt(r, "operator_id", 0),
		Status:     r.URL.Query().Get("status"),
		Limit:      int(queryInt(r, "limit", 100)),
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, list)
}

func (h *Handlers) apiCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var in assignment.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, err := h.engine.Orchestrator().CreateAssignment(r.Context(), principalFrom(r), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, a)
}

func (h *Handlers) apiGetAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, err := h.engine.Orchestrator().GetAssignment(r.Context(), principalFrom(r), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, a)
}

// apiUpdateAssignment is the hub-side correction: attach transport, add
// remarks, cancel, or force-complete with an actual quantity.
func (h *Handlers) apiUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var in assignment.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.engine.Orchestrator().UpdateAssignment(r.Context(), principalFrom(r), id, in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, res)
}

func (h *Handlers) apiAssignmentHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	hist, err := h.engine.Orchestrator().AssignmentHistory(r.Context(), principalFrom(r), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, hist)
}

type transitionBody struct {
	Status string          `json:"status"`
	Fields json.RawMessage `json:"fields,omitempty"`
}

// apiTransition is the HTTP twin of the job.transition device message.
func (h *Handlers) apiTransition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body transitionBody
	if err := decodeJSON(r, &body); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Status == "" {
		h.jsonError(w, "status is required", http.StatusBadRequest)
		return
	}
	res, err := h.engine.Orchestrator().Transition(r.Context(), principalFrom(r), id, body.Status, body.Fields)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, res)
}
