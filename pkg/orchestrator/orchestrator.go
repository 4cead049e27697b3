// Package orchestrator implements the Orchestrator (C6, spec.md §4.1):
// the per-turn driver that resolves a topology, obtains an agent thread,
// drives the model loop, dispatches tool calls, shapes the final frame,
// and persists the turn. Grounded on the teacher's llmagent flow.go
// reasoning-loop shape (bounded rounds of model-call, tool-dispatch,
// model-call again) and pkg/agent/instrumentation.go's span-per-step
// idiom, adapted to this service's single flat event stream instead of
// the teacher's A2A task/event model.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/model"
	"github.com/kadirpekel/analystd/pkg/observability"
	"github.com/kadirpekel/analystd/pkg/tool"
	"github.com/kadirpekel/analystd/pkg/topology"
	"github.com/kadirpekel/analystd/pkg/topology/prompts"
	"github.com/kadirpekel/analystd/pkg/wire"
)

// maxToolRounds bounds the number of model<->tool round trips within a
// single turn, preventing a misbehaving model from looping forever.
const maxToolRounds = 8

// perTurnBudget is the wall-clock budget spec.md §5 assigns a whole
// turn.
const perTurnBudget = 5 * time.Minute

// ThreadProvider obtains or creates a provider-side thread handle for a
// conversation, and tears one down on replacement. Implemented by
// pkg/threadcache; declared here so the orchestrator depends only on the
// narrow surface it needs (dependency points inward, per the teacher's
// services.go interfaces-at-the-consumer pattern).
type ThreadProvider interface {
	Acquire(ctx context.Context, conversationID string, mode domain.Mode) (*domain.AgentThreadHandle, error)
}

// HistoryRecorder persists a completed turn. Implemented by pkg/history.
type HistoryRecorder interface {
	EnsureConversation(ctx context.Context, conversationID, userID, firstUserText string) (*domain.Conversation, error)
	AppendMessages(ctx context.Context, conversationID string, msgs []domain.Message) error
}

// ClientResolver returns the model.Client for a given client shape and
// model choice. Implemented at wiring time in cmd/analystd, since the
// concrete responses/chat clients are constructed once at startup.
type ClientResolver func(shape topology.ClientShape, choice domain.ModelChoice) (model.Client, error)

// Orchestrator drives turns end to end.
type Orchestrator struct {
	catalog   *tool.Catalog
	prompts   *prompts.Registry
	threads   ThreadProvider
	history   HistoryRecorder
	resolve   ClientResolver
	keepalive time.Duration
}

// Config wires an Orchestrator's collaborators.
type Config struct {
	Catalog           *tool.Catalog
	Prompts           *prompts.Registry
	Threads           ThreadProvider
	History           HistoryRecorder
	Resolve           ClientResolver
	KeepaliveInterval time.Duration
}

// New builds an Orchestrator.
func New(cfg Config) *Orchestrator {
	registry := cfg.Prompts
	if registry == nil {
		registry = prompts.Default()
	}
	return &Orchestrator{
		catalog:   cfg.Catalog,
		prompts:   registry,
		threads:   cfg.Threads,
		history:   cfg.History,
		resolve:   cfg.Resolve,
		keepalive: cfg.KeepaliveInterval,
	}
}

// HandleTurn drives one TurnRequest to completion, writing wire frames
// to w as they are produced. It returns once the turn's terminal frame
// has been written (done or error; a cancelled turn ends with done) and
// persistence has been attempted.
func (o *Orchestrator) HandleTurn(ctx context.Context, req domain.TurnRequest, w *wire.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, perTurnBudget)
	defer cancel()

	ctx, span := observability.StartTurnSpan(ctx, req.ConversationID, string(req.Mode))
	defer span.End()

	logger := slog.Default().With("conversation_id", req.ConversationID, "mode", req.Mode)

	topo, err := topology.Build(req.Mode, o.prompts, o.catalog)
	if err != nil {
		observability.EndWithError(span, err)
		return o.emitError(w, "unable to build agent topology")
	}

	client, err := o.resolve(topo.ClientShape, req.Model)
	if err != nil {
		observability.EndWithError(span, err)
		return o.emitError(w, "unable to reach the model")
	}

	thread, err := o.threads.Acquire(ctx, req.ConversationID, req.Mode)
	if err != nil {
		logger.Warn("thread acquisition failed, continuing without provider thread continuity", "error", err)
		thread = &domain.AgentThreadHandle{ConversationID: req.ConversationID, Mode: req.Mode}
	}

	stopKeepalive := make(chan struct{})
	if o.keepalive > 0 {
		wire.StartKeepalive(keepaliveCtx(ctx, stopKeepalive), w, o.keepalive)
	}
	firstFrame := make(chan struct{})
	var firstFrameOnce closeOnce
	stopOnFirstFrame := func() { firstFrameOnce.do(func() { close(firstFrame) }) }
	defer stopOnFirstFrame()
	go func() {
		select {
		case <-firstFrame:
			close(stopKeepalive)
		case <-ctx.Done():
			close(stopKeepalive)
		}
	}()

	turn := &turnState{
		topo:       topo,
		client:     client,
		catalog:    o.catalog,
		writer:     w,
		onFrame:    stopOnFirstFrame,
		threadID:   thread.ProviderThreadID,
		occurrence: map[string]int{},
		logger:     logger,
	}

	assistantMsg, turnErr := turn.run(ctx, req)
	stopOnFirstFrame()

	if turnErr != nil {
		aerr, _ := apperr.As(turnErr)
		if aerr == nil || aerr.Kind.Persists() {
			o.persistBestEffort(req, assistantMsg)
		}
		if aerr != nil && aerr.Kind == apperr.KindCancelled {
			return w.WriteDone()
		}
		return o.emitError(w, "the assistant could not complete this turn")
	}

	o.persistBestEffort(req, assistantMsg)
	if turn.terminalWritten {
		return nil
	}
	return w.WriteDone()
}

// persistBestEffort persists a turn on its own bounded timeout, rather
// than the turn's possibly-already-cancelled context, per spec.md §5's
// "attempts persistence of partial output with a bounded timeout".
func (o *Orchestrator) persistBestEffort(req domain.TurnRequest, assistant *domain.Message) {
	if o.history == nil || assistant == nil {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conv, err := o.history.EnsureConversation(persistCtx, req.ConversationID, req.UserID, req.UserText)
	if err != nil {
		slog.Default().Error("failed to ensure conversation", "conversation_id", req.ConversationID, "error", err)
		return
	}
	userMsg := domain.Message{
		ConversationID: conv.ConversationID,
		Role:           domain.RoleUser,
		Content:        req.UserText,
		CreatedAt:      time.Now(),
	}
	if err := o.history.AppendMessages(persistCtx, conv.ConversationID, []domain.Message{userMsg, *assistant}); err != nil {
		slog.Default().Error("failed to append turn messages", "conversation_id", conv.ConversationID, "error", err)
	}
}

func (o *Orchestrator) emitError(w *wire.Writer, message string) error {
	return w.WriteError(message)
}

func keepaliveCtx(parent context.Context, stop <-chan struct{}) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		<-stop
		cancel()
	}()
	return ctx
}

type closeOnce struct{ done bool }

func (c *closeOnce) do(f func()) {
	if !c.done {
		c.done = true
		f()
	}
}

func digestArgs(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
