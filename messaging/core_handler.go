package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sahilp2023/agrocyle-sub001/assignment"
	"github.com/sahilp2023/agrocyle-sub001/config"
	"github.com/sahilp2023/agrocyle-sub001/presence"
	"github.com/sahilp2023/agrocyle-sub001/protocol"
)

const handlerTimeout = 15 * time.Second

// CoreHandler handles inbound device messages on the inbound topic. Job
// transitions go to the orchestrator and are answered on the reply topic;
// presence pings go to the presence manager.
type CoreHandler struct {
	protocol.NoOpHandler

	orch       *assignment.Orchestrator
	presence   *presence.Manager
	pub        Publisher
	stationID  string
	replyTopic string
	presCfg    config.PresenceConfig

	// Background goroutine for stale operator detection
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCoreHandler creates a handler for inbound device messages.
func NewCoreHandler(orch *assignment.Orchestrator, pm *presence.Manager, pub Publisher, stationID, replyTopic string, presCfg config.PresenceConfig) *CoreHandler {
	return &CoreHandler{
		orch:       orch,
		presence:   pm,
		pub:        pub,
		stationID:  stationID,
		replyTopic: replyTopic,
		presCfg:    presCfg,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the stale-operator sweep goroutine.
func (h *CoreHandler) Start() {
	if h.presCfg.SweepInterval > 0 && h.presCfg.StaleAfter > 0 {
		go h.staleOperatorLoop()
	}
}

// Stop halts the stale-operator sweep goroutine.
func (h *CoreHandler) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// DeviceFilter accepts device-originated messages addressed to core.
func DeviceFilter(hdr *protocol.RawHeader) bool {
	if hdr.Src.Role != protocol.RoleDevice {
		return false
	}
	return hdr.Dst.Role == "" || hdr.Dst.Role == protocol.RoleCore
}

// OperatorNode is the device node name an operator's app publishes as.
func OperatorNode(operatorID int64) string {
	return fmt.Sprintf("operator-%d", operatorID)
}

func (h *CoreHandler) HandleJobTransition(env *protocol.Envelope, p *protocol.JobTransition) {
	log.Printf("core_handler: job transition from %s: assignment=%d -> %s", env.Src.Node, p.AssignmentID, p.Status)

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	result := protocol.JobTransitionResult{AssignmentID: p.AssignmentID}
	if env.Src.Node != "" && env.Src.Node != OperatorNode(p.OperatorID) {
		result.ErrorKind = assignment.KindUnauthorized
		result.Error = fmt.Sprintf("device %s cannot act for operator %d", env.Src.Node, p.OperatorID)
		h.reply(ctx, env, &result)
		return
	}

	principal := assignment.Principal{Role: assignment.RoleOperator, ID: p.OperatorID}
	res, err := h.orch.Transition(ctx, principal, p.AssignmentID, p.Status, p.Fields)
	if err != nil {
		result.ErrorKind = assignment.Kind(err)
		result.Error = err.Error()
		var ite *assignment.InvalidTransitionError
		if errors.As(err, &ite) {
			result.OperatorStatus = ite.Current
			result.Allowed = ite.Allowed
		}
		if result.ErrorKind == assignment.KindInternal {
			log.Printf("core_handler: transition assignment %d: %v", p.AssignmentID, err)
		}
		h.reply(ctx, env, &result)
		return
	}

	result.OK = true
	result.Status = res.Assignment.Status
	result.OperatorStatus = res.Assignment.OperatorStatus
	result.Replayed = res.Replayed
	result.Dropped = res.Dropped
	h.reply(ctx, env, &result)
}

func (h *CoreHandler) HandleOperatorPresence(env *protocol.Envelope, p *protocol.OperatorPresence) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if env.Src.Node != "" && env.Src.Node != OperatorNode(p.OperatorID) {
		log.Printf("core_handler: presence for operator %d from foreign device %s dropped", p.OperatorID, env.Src.Node)
		return
	}
	_, err := h.presence.Ping(ctx, presence.Ping{
		OperatorID: p.OperatorID,
		Lat:        p.Lat,
		Lng:        p.Lng,
		Online:     p.Online,
	})
	if err != nil {
		log.Printf("core_handler: presence ping operator %d: %v", p.OperatorID, err)
	}
}

func (h *CoreHandler) reply(ctx context.Context, env *protocol.Envelope, result *protocol.JobTransitionResult) {
	reply, err := protocol.NewReply(
		protocol.TypeJobTransitionResult,
		protocol.Address{Role: protocol.RoleCore, Node: h.stationID},
		protocol.Address{Role: protocol.RoleDevice, Node: env.Src.Node, Hub: env.Src.Hub},
		env.ID,
		result,
	)
	if err != nil {
		log.Printf("core_handler: build transition result: %v", err)
		return
	}
	data, err := reply.Encode()
	if err != nil {
		log.Printf("core_handler: encode transition result: %v", err)
		return
	}
	if err := h.pub.Publish(ctx, h.replyTopic, data); err != nil {
		log.Printf("core_handler: publish transition result: %v", err)
	}
}

func (h *CoreHandler) staleOperatorLoop() {
	ticker := time.NewTicker(h.presCfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sweepStale()
		}
	}
}

func (h *CoreHandler) sweepStale() {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	ids, err := h.presence.SweepStale(ctx, h.presCfg.StaleAfter)
	if err != nil {
		log.Printf("core_handler: sweep stale operators: %v", err)
	} else if len(ids) > 0 {
		log.Printf("core_handler: marked %d operator(s) offline", len(ids))
	}
}
