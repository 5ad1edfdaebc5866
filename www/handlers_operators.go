package www

import (
	"errors"
	"net/http"

	"github.com/sahilp2023/agrocyle-sub001/assignment"
	"github.com/sahilp2023/agrocyle-sub001/presence"
)

func (h *Handlers) apiListOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := h.engine.Orchestrator().ListOperators(r.Context(), principalFrom(r), queryInt(r, "hub_id", 0))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, ops)
}

func (h *Handlers) apiRegisterOperator(w http.ResponseWriter, r *http.Request) {
	var in assignment.NewOperator
	if err := decodeJSON(r, &in); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	op, err := h.engine.Orchestrator().RegisterOperator(r.Context(), principalFrom(r), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, op)
}

func (h *Handlers) apiGetOperator(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	op, err := h.engine.Orchestrator().GetOperator(r.Context(), principalFrom(r), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, op)
}

type flagBody struct {
	Value *bool `json:"value"`
}

func (h *Handlers) apiSetOperatorVerified(w http.ResponseWriter, r *http.Request) {
	id, value, ok := h.flagRequest(w, r)
	if !ok {
		return
	}
	op, err := h.engine.Orchestrator().SetOperatorVerified(r.Context(), principalFrom(r), id, value)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, op)
}

func (h *Handlers) apiSetOperatorActive(w http.ResponseWriter, r *http.Request) {
	id, value, ok := h.flagRequest(w, r)
	if !ok {
		return
	}
	op, err := h.engine.Orchestrator().SetOperatorActive(r.Context(), principalFrom(r), id, value)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, op)
}

func (h *Handlers) flagRequest(w http.ResponseWriter, r *http.Request) (int64, bool, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return 0, false, false
	}
	var body flagBody
	if err := decodeJSON(r, &body); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return 0, false, false
	}
	if body.Value == nil {
		h.jsonError(w, "value is required", http.StatusBadRequest)
		return 0, false, false
	}
	return id, *body.Value, true
}

// apiOperatorPresence is the HTTP twin of the operator.presence device
// message. Operators may only report for themselves.
func (h *Handlers) apiOperatorPresence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	p := principalFrom(r)
	if p.Role != assignment.RoleOperator || p.ID != id {
		h.jsonError(w, "operators may only report their own presence", http.StatusForbidden)
		return
	}
	var ping presence.Ping
	if err := decodeJSON(r, &ping); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ping.OperatorID = id
	st, err := h.engine.Presence().Ping(r.Context(), ping)
	if err != nil {
		if errors.Is(err, presence.ErrUnknownOperator) {
			h.jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.jsonOK(w, st)
}

func (h *Handlers) apiGetPresence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// reuse the directory's visibility rule
	if _, err := h.engine.Orchestrator().GetOperator(r.Context(), principalFrom(r), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	st, err := h.engine.Presence().Get(r.Context(), id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, st)
}

// apiNearbyOperators lists online operators of a hub around a point, for
// dispatchers choosing whom to assign.
func (h *Handlers) apiNearbyOperators(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Role != assignment.RoleHubManager {
		h.jsonError(w, "hub staff only", http.StatusForbidden)
		return
	}
	hubID := queryInt(r, "hub_id", p.HubID)
	if hubID == 0 || (p.HubID != 0 && hubID != p.HubID) {
		h.jsonError(w, "hub_id out of scope", http.StatusForbidden)
		return
	}
	lat, err := queryFloat(r, "lat")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	radius := 25.0
	if r.URL.Query().Get("radius_km") != "" {
		if radius, err = queryFloat(r, "radius_km"); err != nil || radius <= 0 {
			h.jsonError(w, "invalid radius_km", http.StatusBadRequest)
			return
		}
	}
	near, err := h.engine.Presence().Nearby(r.Context(), hubID, lat, lng, radius, int(queryInt(r, "limit", 20)))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if near == nil {
		near = []presence.NearbyOperator{}
	}
	h.jsonOK(w, near)
}
