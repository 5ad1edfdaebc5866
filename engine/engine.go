package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sahilp2023/agrocyle-sub001/assignment"
	"github.com/sahilp2023/agrocyle-sub001/config"
	"github.com/sahilp2023/agrocyle-sub001/messaging"
	"github.com/sahilp2023/agrocyle-sub001/presence"
	"github.com/sahilp2023/agrocyle-sub001/store"
)

type LogFunc func(format string, args ...any)

// CachePinger reports whether the presence cache is reachable.
type CachePinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Presence   *presence.Manager
	// Cache and MsgClient may be nil.
	Cache     CachePinger
	MsgClient *messaging.Client
	LogFunc   LogFunc
}

type Engine struct {
	cfg            *config.Config
	configPath     string
	db             *store.DB
	presence       *presence.Manager
	cache          CachePinger
	msgClient      *messaging.Client
	orchestrator   *assignment.Orchestrator
	Events         *EventBus
	logFn          LogFunc
	stopChan       chan struct{}
	msgConnected   bool
	cacheConnected bool
}

var errNoCache = errors.New("no cache configured")

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		presence:   c.Presence,
		cache:      c.Cache,
		msgClient:  c.MsgClient,
		Events:     NewEventBus(),
		logFn:      logFn,
		stopChan:   make(chan struct{}),
	}
	e.Events.logFn = logFn
	e.orchestrator = assignment.NewOrchestrator(
		e.db,
		&assignmentEmitter{bus: e.Events},
		e.cfg.Pricing,
		e.cfg.Messaging.DeliveredTopic,
		e.cfg.Messaging.StationID,
	)
	return e
}

func (e *Engine) Start() {
	// Wire event handlers
	e.wireEventHandlers()

	// Rebuild the presence cache from the operator directory
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := e.presence.SyncCacheFromSQL(ctx); err != nil {
		e.logFn("engine: presence cache sync: %v", err)
	}
	cancel()

	// Emit initial connection status
	e.checkConnectionStatus()

	// Start periodic connection health check
	go e.connectionHealthLoop()

	e.logFn("engine: started")
}

func (e *Engine) Stop() {
	select {
	case e.stopChan <- struct{}{}:
	default:
	}
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                          { return e.db }
func (e *Engine) AppConfig() *config.Config              { return e.cfg }
func (e *Engine) ConfigPath() string                     { return e.configPath }
func (e *Engine) Orchestrator() *assignment.Orchestrator { return e.orchestrator }
func (e *Engine) Presence() *presence.Manager            { return e.presence }
func (e *Engine) MsgClient() *messaging.Client           { return e.msgClient }

// Health reports connectivity of the optional backends.
func (e *Engine) Health() map[string]bool {
	return map[string]bool{
		"messaging": e.msgClient != nil && e.msgClient.IsConnected(),
		"cache":     e.pingCache() == nil,
	}
}

func (e *Engine) pingCache() error {
	if e.cache == nil {
		return errNoCache
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return e.cache.Ping(ctx)
}

func (e *Engine) checkConnectionStatus() {
	// Messaging
	if e.msgClient != nil && e.msgClient.IsConnected() {
		if !e.msgConnected {
			e.msgConnected = true
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
		}
	} else {
		if e.msgConnected {
			e.msgConnected = false
			e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
		}
	}

	// Presence cache
	if err := e.pingCache(); err == nil {
		if !e.cacheConnected {
			e.cacheConnected = true
			e.Events.Emit(Event{Type: EventCacheConnected, Payload: ConnectionEvent{Detail: "cache connected"}})
		}
	} else {
		if e.cacheConnected {
			e.cacheConnected = false
			e.Events.Emit(Event{Type: EventCacheDisconnected, Payload: ConnectionEvent{Detail: err.Error()}})
		}
	}
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			wasCache := e.cacheConnected
			e.checkConnectionStatus()
			// the cache may have restarted empty
			if !wasCache && e.cacheConnected {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := e.presence.SyncCacheFromSQL(ctx); err != nil {
					e.logFn("engine: presence cache resync: %v", err)
				}
				cancel()
			}
		}
	}
}

// ReconfigureMessaging reconnects messaging with current config.
func (e *Engine) ReconfigureMessaging() {
	if e.msgClient == nil {
		return
	}
	if err := e.msgClient.Reconfigure(&e.cfg.Messaging); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
	} else {
		e.logFn("engine: messaging reconfigured")
	}
	e.checkConnectionStatus()
}
