package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seawire/vela/internal/adapter/claude"
	"github.com/seawire/vela/internal/adapter/cookie"
	"github.com/seawire/vela/internal/adapter/prompt"
	"github.com/seawire/vela/internal/adapter/stream"
	"github.com/seawire/vela/internal/config"
	"github.com/seawire/vela/internal/core/domain"
	"github.com/seawire/vela/internal/logger"
)

// cleanupTimeout bounds the background conversation delete so a dead upstream
// cannot pin goroutines.
const cleanupTimeout = 10 * time.Second

// forceSuffix lets clients pin a model for paid accounts
const forceSuffix = "--force"

// history is what one request leaves behind for the next one's renewal
// decision: the message list, whether the client ended on an assistant turn,
// and the persona (first system prompt) it was talking to.
type history struct {
	messages     []domain.Message
	impersonated bool
	char         *string
}

// carried is a conversation that outlived its request, either because
// preserve_chats is on or because the engine chose to continue it.
type carried struct {
	leaseID string
	conv    uuid.UUID
	depth   int
}

// Manager builds per-request Sessions and keeps the little state that has to
// survive between requests: the previous message list and any conversation
// left alive. Everything else lives on the Session, owned by one request.
type Manager struct {
	cfg         *config.Config
	client      *claude.Client
	transformer *prompt.Transformer
	pool        *cookie.Pool
	logger      *logger.StyledLogger

	mu    sync.Mutex
	prev  history
	carry *carried
}

// SetConfig swaps the active configuration; hot reload calls this after the
// file watcher fires. In-flight sessions keep the snapshot they started with.
func (m *Manager) SetConfig(cfg *config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Manager) configSnapshot() *config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func NewManager(cfg *config.Config, client *claude.Client, transformer *prompt.Transformer, pool *cookie.Pool, log *logger.StyledLogger) *Manager {
	return &Manager{
		cfg:         cfg,
		client:      client,
		transformer: transformer,
		pool:        pool,
		logger:      log,
	}
}

// Session is the per-request execution context: one cookie, one organisation,
// at most one live upstream conversation. It is owned exclusively by the
// goroutine handling the request; Close is safe to call more than once but
// runs its cleanup exactly once.
type Session struct {
	m     *Manager
	lease cookie.Lease
	cred  claude.Credential

	convUUID    *uuid.UUID
	convDepth   int
	model       string
	isPro       *bool
	cookieModel string

	closeOnce sync.Once
}

// Begin borrows a cookie from the pool and resolves the organisation bound to
// it when the pool has none cached. A session returned here must be Closed on
// every path.
func (m *Manager) Begin(ctx context.Context) (*Session, error) {
	lease, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	s := &Session{
		m:     m,
		lease: lease,
		cred: claude.Credential{
			Cookie:  lease.Cookie,
			OrgUUID: lease.OrgUUID,
		},
		cookieModel: lease.Model,
	}
	if s.cred.OrgUUID == "" {
		org, err := m.client.ResolveOrg(ctx, &s.cred)
		if err != nil {
			s.Close(err)
			return nil, domain.ErrNoValidKey
		}
		s.cred.OrgUUID = org.UUID
		pro := org.IsPro()
		s.isPro = &pro
		if m.logger != nil {
			m.logger.InfoWithCookie("organisation resolved", cookie.Redact(lease.ID),
				"org", org.UUID, "pro", pro)
		}
	}
	s.adoptCarried()
	return s, nil
}

// adoptCarried takes ownership of a surviving conversation when it belongs to
// this session's cookie. Conversations are account-scoped upstream, so one
// carried under a different lease is useless here and stays put.
func (s *Session) adoptCarried() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.carry == nil || s.m.carry.leaseID != s.lease.ID {
		return
	}
	conv := s.m.carry.conv
	s.convUUID = &conv
	s.convDepth = s.m.carry.depth
	s.m.carry = nil
}

// Request is the handler-neutral shape of one inbound completion request.
type Request struct {
	Messages  []domain.Message
	Model     string
	Stop      []string
	MaxTokens int64
	Stream    bool
	Thinking  bool
}

// Outcome is what Execute hands back to the HTTP layer: either a finished
// upstream body or a running stream transformer, plus the control state the
// prompt scan produced.
type Outcome struct {
	Body    []byte
	Stream  *stream.Transformer
	Signals prompt.Signals
	Stops   []string
}

// Execute runs the whole pipeline for one request: validate, decide how the
// request maps onto upstream conversations, transform the prompt, create the
// conversation and fire the completion call.
func (s *Session) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if len(req.Messages) == 0 {
		return nil, domain.ErrWrongCompletionFormat
	}
	model := s.chooseModel(req.Model)
	if !s.m.knownModel(model) {
		return nil, &domain.InvalidModelError{Model: model}
	}
	s.model = model

	group := domain.FindPrompts(req.Messages)
	char, _ := domain.ContentOf(group.FirstSystem)

	d := s.decide(req.Messages)
	if s.m.logger != nil {
		s.m.logger.Debug("conversation strategy",
			"strategy", d.Strategy.String(),
			"same_prompts", d.SamePrompts,
			"same_char_diff_chat", d.SameCharDiffChat,
			"should_renew", d.ShouldRenew)
	}
	s.rememberHistory(req.Messages, d, char, group)

	if err := s.applyStrategy(ctx, d, req.Thinking); err != nil {
		return nil, err
	}

	out := s.m.transformer.Transform(prompt.Input{
		Messages:  req.Messages,
		Model:     model,
		Stop:      req.Stop,
		MaxTokens: req.MaxTokens,
	})
	if out.Signals.MessagesLog && s.m.logger != nil {
		s.m.logger.Info("assembled prompt", "prompt", out.Body.Prompt)
	}

	upCtx, cancel := context.WithCancel(ctx)
	res, err := s.m.client.Complete(upCtx, &s.cred, *s.convUUID, out.Body, req.Stream)
	if err != nil {
		cancel()
		return nil, err
	}
	s.cookieModel = model
	s.convDepth++

	if !req.Stream {
		defer cancel()
		defer res.Body.Close()
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}
		return &Outcome{Body: body, Signals: out.Signals, Stops: out.Stops}, nil
	}

	tr := stream.NewTransformer(out.Signals, cancel, s.m.logger)
	go func() {
		defer res.Body.Close()
		tr.Run(ctx, res.Body)
	}()
	return &Outcome{Stream: tr, Signals: out.Signals, Stops: out.Stops}, nil
}

// decide snapshots the cross-request state under the manager lock and runs
// the renewal engine against it.
func (s *Session) decide(current []domain.Message) Decision {
	s.m.mu.Lock()
	prev := s.m.prev
	settings := s.m.cfg.Settings
	s.m.mu.Unlock()
	return Decide(Inputs{
		Current:          current,
		Previous:         prev.messages,
		PrevImpersonated: prev.impersonated,
		HasConversation:  s.convUUID != nil,
		CharBound:        prev.char != nil,
		RenewAlways:      settings.RenewAlways,
		RetryRegenerate:  settings.RetryRegenerate,
	})
}

// rememberHistory records the request for the next decision, but only when
// the prompts actually changed: a resubmission must keep comparing against
// the original, not against itself.
func (s *Session) rememberHistory(msgs []domain.Message, d Decision, char string, group domain.PromptsGroup) {
	if d.SamePrompts {
		return
	}
	kept := make([]domain.Message, len(msgs))
	copy(kept, msgs)
	var boundChar *string
	if group.FirstSystem != nil {
		boundChar = &char
	}
	s.m.mu.Lock()
	s.m.prev = history{
		messages:     kept,
		impersonated: endsOnAssistant(msgs),
		char:         boundChar,
	}
	s.m.mu.Unlock()
}

// applyStrategy turns the decision into conversation operations. The
// regeneration and in-place variants collapse to renewal: upstream offers no
// reliable regenerate call over this surface, so a fresh conversation is the
// safe equivalent.
func (s *Session) applyStrategy(ctx context.Context, d Decision, thinking bool) error {
	if d.Strategy.IsCurrent() && s.convUUID != nil && !d.ShouldRenew {
		if s.m.logger != nil {
			s.m.logger.Debug("continuing live conversation falls back to renewal",
				"strategy", d.Strategy.String(), "conversation", s.convUUID.String())
		}
	}
	if s.convUUID != nil {
		if err := s.m.client.DeleteConversation(ctx, &s.cred, *s.convUUID); err != nil {
			return err
		}
		s.convUUID = nil
		s.convDepth = 0
	}
	conv := uuid.New()
	if err := s.m.client.CreateConversation(ctx, &s.cred, conv, s.model, thinking); err != nil {
		return err
	}
	s.convUUID = &conv
	s.convDepth = 0
	return nil
}

// chooseModel resolves the model the upstream call will carry. Paid accounts
// honour the client's choice; free accounts stick to whatever model the
// cookie last worked with. A --force suffix overrides the fallback.
func (s *Session) chooseModel(requested string) string {
	trimmed := strings.TrimSuffix(requested, forceSuffix)
	forced := trimmed != requested
	trimmed = strings.TrimSpace(trimmed)
	if forced {
		return trimmed
	}
	if s.isPro != nil && *s.isPro {
		return trimmed
	}
	if s.cookieModel != "" {
		return s.cookieModel
	}
	return trimmed
}

func (m *Manager) knownModel(model string) bool {
	for _, known := range m.configSnapshot().Upstream.Models {
		if model == known {
			return true
		}
	}
	return strings.Contains(model, "claude-")
}

// Close discharges the session's cleanup obligation: delete the conversation
// (or hand it back when preserve_chats keeps it alive) and return the cookie
// to the pool with the health verdict derived from err. Runs at most once no
// matter how many paths call it.
func (s *Session) Close(err error) {
	s.closeOnce.Do(func() { s.cleanup(err) })
}

// CloseAsync is Close for the happy path: the response has already gone out,
// so the delete and return ride a detached goroutine.
func (s *Session) CloseAsync(err error) {
	s.closeOnce.Do(func() { go s.cleanup(err) })
}

func (s *Session) cleanup(err error) {
	if s.convUUID != nil {
		if err == nil && s.m.configSnapshot().Settings.PreserveChats {
			s.storeCarried()
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			if derr := s.m.client.DeleteConversation(ctx, &s.cred, *s.convUUID); derr != nil && s.m.logger != nil {
				s.m.logger.Warn("conversation delete failed",
					"conversation", s.convUUID.String(), "error", derr)
			}
			cancel()
			s.convUUID = nil
		}
	}
	s.m.pool.ReturnChannel() <- cookie.Return{
		ID:      s.lease.ID,
		Cookie:  s.cred.Cookie,
		OrgUUID: s.cred.OrgUUID,
		Model:   s.cookieModel,
		Reason:  domain.ReturnReason(err),
	}
}

func (s *Session) storeCarried() {
	s.m.mu.Lock()
	s.m.carry = &carried{
		leaseID: s.lease.ID,
		conv:    *s.convUUID,
		depth:   s.convDepth,
	}
	s.m.mu.Unlock()
	s.convUUID = nil
}

// endsOnAssistant reports whether the client handed us a prompt whose final
// non-system turn is an assistant turn, i.e. it wants the model to keep
// speaking in that voice.
func endsOnAssistant(msgs []domain.Message) bool {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleSystem {
			continue
		}
		return msgs[i].Role == domain.RoleAssistant
	}
	return false
}
