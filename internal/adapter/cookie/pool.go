package cookie

import (
	"context"
	"time"

	"github.com/seawire/vela/internal/core/domain"
	"github.com/seawire/vela/internal/logger"
)

// Lease is what a request borrows from the pool: a session cookie and, when
// already known, the upstream organisation bound to it. ID is the pool's
// stable identity for the cookie; the Cookie value itself rotates as
// upstream responses refresh it.
type Lease struct {
	ID      string
	Cookie  string
	OrgUUID string
	Model   string
}

// Return is the mandatory end-of-request message back to the pool. Reason nil
// means the cookie is healthy. Cookie carries the possibly-rotated value;
// OrgUUID/Model let the borrower cache what it learnt about the account.
type Return struct {
	ID      string
	Cookie  string
	OrgUUID string
	Model   string
	Reason  *domain.Reason
}

// Status is a point-in-time snapshot for the status endpoint
type Status struct {
	Available int `json:"available"`
	InFlight  int `json:"in_flight"`
	Cooling   int `json:"cooling"`
	Evicted   int `json:"evicted"`
}

type entry struct {
	cookie    string
	orgUUID   string
	model     string
	coolUntil time.Time
	inFlight  bool
	evicted   bool
}

type acquireRequest struct {
	reply chan acquireReply
}

type acquireReply struct {
	lease Lease
	ok    bool
}

// Pool owns the session cookies and their health state. All access goes
// through channels; the run loop is the only goroutine touching the entries.
type Pool struct {
	entries   map[string]*entry
	order     []string
	next      int
	acquireCh chan acquireRequest
	returnCh  chan Return
	seedCh    chan []string
	statusCh  chan chan Status
	logger    *logger.StyledLogger
}

const returnBuffer = 16

func NewPool(cookies []string, log *logger.StyledLogger) *Pool {
	p := &Pool{
		entries:   make(map[string]*entry),
		acquireCh: make(chan acquireRequest),
		returnCh:  make(chan Return, returnBuffer),
		seedCh:    make(chan []string),
		statusCh:  make(chan chan Status),
		logger:    log,
	}
	p.seed(cookies)
	return p
}

// Run is the pool actor loop. It exits when ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	for {
		select {
		case req := <-p.acquireCh:
			lease, ok := p.take()
			req.reply <- acquireReply{lease: lease, ok: ok}
		case ret := <-p.returnCh:
			p.absorb(ret)
		case cookies := <-p.seedCh:
			p.seed(cookies)
		case reply := <-p.statusCh:
			reply <- p.snapshot()
		case <-ctx.Done():
			return
		}
	}
}

// Acquire borrows a cookie, failing when none is usable or ctx expires
func (p *Pool) Acquire(ctx context.Context) (Lease, error) {
	req := acquireRequest{reply: make(chan acquireReply, 1)}
	select {
	case p.acquireCh <- req:
	case <-ctx.Done():
		return Lease{}, ctx.Err()
	}
	select {
	case reply := <-req.reply:
		if !reply.ok {
			return Lease{}, domain.ErrNoValidKey
		}
		return reply.lease, nil
	case <-ctx.Done():
		return Lease{}, ctx.Err()
	}
}

// ReturnChannel exposes the buffered return side of the protocol. Each
// borrower sends exactly one Return per lease.
func (p *Pool) ReturnChannel() chan<- Return {
	return p.returnCh
}

// Seed replaces the cookie set, keeping health state for cookies that remain
func (p *Pool) Seed(ctx context.Context, cookies []string) error {
	select {
	case p.seedCh <- cookies:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of pool health
func (p *Pool) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case p.statusCh <- reply:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (p *Pool) take() (Lease, bool) {
	now := time.Now()
	for range p.order {
		id := p.order[p.next%len(p.order)]
		p.next++
		e := p.entries[id]
		if e == nil || e.evicted || e.inFlight {
			continue
		}
		if !e.coolUntil.IsZero() && now.Before(e.coolUntil) {
			continue
		}
		e.coolUntil = time.Time{}
		e.inFlight = true
		return Lease{ID: id, Cookie: e.cookie, OrgUUID: e.orgUUID, Model: e.model}, true
	}
	return Lease{}, false
}

func (p *Pool) absorb(ret Return) {
	e := p.entries[ret.ID]
	if e == nil {
		// cookie was dropped by a reseed while out on loan
		return
	}
	e.inFlight = false
	if ret.Cookie != "" {
		// upstream may have rotated the session cookie mid-request
		e.cookie = ret.Cookie
	}
	if ret.OrgUUID != "" {
		e.orgUUID = ret.OrgUUID
	}
	if ret.Model != "" {
		e.model = ret.Model
	}

	switch {
	case ret.Reason == nil:
		if p.logger != nil {
			p.logger.Debug("cookie returned healthy", "cookie", Redact(ret.ID))
		}
	case ret.Reason.Kind == domain.ReasonExhausted:
		e.coolUntil = time.Now().Add(time.Duration(ret.Reason.RetryAfter) * time.Second)
		if p.logger != nil {
			p.logger.WarnWithCookie("cookie cooling down", Redact(ret.ID), "retry_after_s", ret.Reason.RetryAfter)
		}
	case ret.Reason.Kind == domain.ReasonRestricted:
		e.coolUntil = ret.Reason.Until
		if p.logger != nil {
			p.logger.WarnWithCookie("cookie restricted", Redact(ret.ID), "until", ret.Reason.Until)
		}
	default:
		e.evicted = true
		if p.logger != nil {
			p.logger.WarnWithCookie("cookie evicted", Redact(ret.ID), "reason", ret.Reason.String())
		}
	}
}

func (p *Pool) seed(cookies []string) {
	seen := make(map[string]bool, len(cookies))
	order := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		order = append(order, c)
		if _, exists := p.entries[c]; !exists {
			p.entries[c] = &entry{cookie: c}
		}
	}
	for c, e := range p.entries {
		if !seen[c] && !e.inFlight {
			delete(p.entries, c)
		}
	}
	p.order = order
	p.next = 0
	if p.logger != nil {
		p.logger.InfoWithCount("Cookie pool seeded", len(order))
	}
}

func (p *Pool) snapshot() Status {
	var s Status
	now := time.Now()
	for _, e := range p.entries {
		switch {
		case e.evicted:
			s.Evicted++
		case e.inFlight:
			s.InFlight++
		case !e.coolUntil.IsZero() && now.Before(e.coolUntil):
			s.Cooling++
		default:
			s.Available++
		}
	}
	return s
}

// Redact trims a cookie value down to a loggable prefix
func Redact(cookie string) string {
	const keep = 12
	if len(cookie) <= keep {
		return cookie
	}
	return cookie[:keep] + "…"
}
