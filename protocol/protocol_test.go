package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewEnvelopeCarriesPayload(t *testing.T) {
	src := Address{Role: RoleDevice, Node: "operator-7", Hub: "KNL"}
	dst := Address{Role: RoleCore}

	env, err := NewEnvelope(TypeJobTransition, src, dst, &JobTransition{
		AssignmentID: 12,
		OperatorID:   7,
		Status:       "accepted",
		Fields:       json.RawMessage(`{"remarks":"on my way"}`),
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.Version != Version {
		t.Errorf("version = %d, want %d", env.Version, Version)
	}
	if env.Src != src {
		t.Errorf("src = %+v, want %+v", env.Src, src)
	}
	if env.ID == "" {
		t.Error("ID should not be empty")
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	var p JobTransition
	if err := decoded.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.AssignmentID != 12 || p.Status != "accepted" {
		t.Errorf("payload = %+v, want assignment 12 accepted", p)
	}
	if string(p.Fields) != `{"remarks":"on my way"}` {
		t.Errorf("fields = %s, want raw passthrough", p.Fields)
	}
}

func TestNewReply(t *testing.T) {
	reply, err := NewReply(TypeJobTransitionResult,
		Address{Role: RoleCore},
		Address{Role: RoleDevice, Node: "operator-7"},
		"orig-msg-id",
		&JobTransitionResult{AssignmentID: 12, OK: true},
	)
	if err != nil {
		t.Fatalf("NewReply: %v", err)
	}
	if reply.CorID != "orig-msg-id" {
		t.Errorf("cor = %q, want %q", reply.CorID, "orig-msg-id")
	}
}

func TestExpiry(t *testing.T) {
	env := &Envelope{ExpiresAt: time.Now().UTC().Add(-1 * time.Minute)}
	if !IsExpired(env) {
		t.Error("expected expired envelope to be detected")
	}
	env.ExpiresAt = time.Now().UTC().Add(10 * time.Minute)
	if IsExpired(env) {
		t.Error("expected future-expiry envelope to not be expired")
	}
	env.ExpiresAt = time.Time{}
	if IsExpired(env) {
		t.Error("expected zero-expiry envelope to not be expired")
	}
}

func TestExpiryToleratesClockSkew(t *testing.T) {
	env := &Envelope{ExpiresAt: time.Now().UTC().Add(-10 * time.Second)}
	if IsExpired(env) {
		t.Error("expected envelope within clock skew to be accepted")
	}
	hdr := &RawHeader{ExpiresAt: time.Now().UTC().Add(-ClockSkew - time.Second)}
	if !IsExpiredHeader(hdr) {
		t.Error("expected header past clock skew to be expired")
	}
}

func TestRawHeaderValidate(t *testing.T) {
	tests := []struct {
		name string
		hdr  RawHeader
		ok   bool
	}{
		{"valid", RawHeader{Version: Version, Type: TypeJobTransition, ID: "m1"}, true},
		{"missing id", RawHeader{Version: Version, Type: TypeJobTransition}, false},
		{"missing type", RawHeader{Version: Version, ID: "m1"}, false},
		{"zero version", RawHeader{Type: TypeJobTransition, ID: "m1"}, false},
		{"future version", RawHeader{Version: Version + 1, Type: TypeJobTransition, ID: "m1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.hdr.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestDefaultTTLFor(t *testing.T) {
	if ttl := DefaultTTLFor(TypeOperatorPresence); ttl != 2*time.Minute {
		t.Errorf("presence TTL = %v, want 2m", ttl)
	}
	if ttl := DefaultTTLFor(TypeJobDelivered); ttl != 7*24*time.Hour {
		t.Errorf("delivered TTL = %v, want 168h", ttl)
	}
	if ttl := DefaultTTLFor("unknown.type"); ttl != FallbackTTL {
		t.Errorf("unknown TTL = %v, want %v", ttl, FallbackTTL)
	}
}

func TestIngestorDispatch(t *testing.T) {
	handler := &testHandler{}
	ingestor := NewIngestor(handler, nil)

	env, _ := NewEnvelope(TypeOperatorPresence,
		Address{Role: RoleDevice, Node: "operator-3"},
		Address{Role: RoleCore},
		&OperatorPresence{OperatorID: 3, Lat: 29.69, Lng: 76.98, Online: true},
	)
	data, _ := env.Encode()
	ingestor.HandleRaw(data)

	if handler.presence == nil {
		t.Fatal("expected HandleOperatorPresence to be called")
	}
	if handler.presence.OperatorID != 3 || !handler.presence.Online {
		t.Errorf("presence = %+v, want operator 3 online", handler.presence)
	}
	if handler.transitions != 0 {
		t.Errorf("transitions = %d, want 0", handler.transitions)
	}
}

func TestIngestorFilter(t *testing.T) {
	handler := &testHandler{}
	ingestor := NewIngestor(handler, func(hdr *RawHeader) bool { return hdr.Src.Role == RoleDevice })

	env, _ := NewEnvelope(TypeJobTransition,
		Address{Role: RoleAccounting},
		Address{Role: RoleCore},
		&JobTransition{AssignmentID: 1, Status: "accepted"},
	)
	data, _ := env.Encode()
	ingestor.HandleRaw(data)

	if handler.transitions != 0 {
		t.Error("expected handler to NOT be called when filter rejects")
	}
}

func TestIngestorDropsExpiredAndGarbage(t *testing.T) {
	handler := &testHandler{}
	ingestor := NewIngestor(handler, nil)

	env, _ := NewEnvelope(TypeJobTransition,
		Address{Role: RoleDevice},
		Address{Role: RoleCore},
		&JobTransition{AssignmentID: 1, Status: "accepted"},
	)
	env.ExpiresAt = time.Now().UTC().Add(-1 * time.Minute)
	data, _ := env.Encode()
	ingestor.HandleRaw(data)
	ingestor.HandleRaw([]byte("not json"))
	ingestor.HandleRaw([]byte(`{"v":1,"type":"job.transition","p":"not an object"}`))
	ingestor.HandleRaw([]byte(`{"v":1,"id":"m2","type":"job.transition","p":"not an object"}`))
	ingestor.HandleRaw([]byte(`{"v":9,"id":"m3","type":"job.transition","p":{"assignment_id":1}}`))

	if handler.transitions != 0 {
		t.Errorf("transitions = %d, want 0", handler.transitions)
	}
}

func TestWireFormatKeys(t *testing.T) {
	env, _ := NewEnvelope(TypeJobDelivered,
		Address{Role: RoleCore, Node: "core"},
		Address{Role: RoleAccounting},
		&JobDelivered{AssignmentID: 1, Quantity: 4.5},
	)
	data, _ := env.Encode()

	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"v", "type", "id", "src", "dst", "ts", "exp", "p"} {
		if _, ok := m[k]; !ok {
			t.Errorf("expected key %q in wire format", k)
		}
	}
	for _, k := range []string{"version", "payload", "timestamp", "expires_at"} {
		if _, ok := m[k]; ok {
			t.Errorf("unexpected long key %q in wire format", k)
		}
	}
}

type testHandler struct {
	NoOpHandler
	presence    *OperatorPresence
	transitions int
}

func (h *testHandler) HandleOperatorPresence(_ *Envelope, p *OperatorPresence) {
	h.presence = p
}

func (h *testHandler) HandleJobTransition(*Envelope, *JobTransition) {
	h.transitions++
}
