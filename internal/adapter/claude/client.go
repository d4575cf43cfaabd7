package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/seawire/vela/internal/config"
	"github.com/seawire/vela/internal/core/constants"
	"github.com/seawire/vela/internal/core/domain"
	"github.com/seawire/vela/internal/logger"
)

const (
	DefaultMaxIdleConns        = 20
	DefaultMaxIdleConnsPerHost = 5
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultKeepAlive           = 60 * time.Second
)

var (
	sharedTransport     *http.Transport
	sharedTransportOnce sync.Once
)

// transportFor returns the process-wide upstream transport, tuned for long
// lived event streams. Immutable after first use.
func transportFor(cfg *config.UpstreamConfig) *http.Transport {
	sharedTransportOnce.Do(func() {
		connTimeout := cfg.ConnectionTimeout
		if connTimeout == 0 {
			connTimeout = 30 * time.Second
		}
		sharedTransport = &http.Transport{
			MaxIdleConns:        DefaultMaxIdleConns,
			MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
			TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
			DisableCompression:  false,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				dialer := &net.Dialer{
					Timeout:   connTimeout,
					KeepAlive: DefaultKeepAlive,
				}
				conn, err := dialer.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				// Disable Nagle's algorithm for token streaming
				if tcpConn, ok := conn.(*net.TCPConn); ok {
					_ = tcpConn.SetNoDelay(true)
				}
				return conn, nil
			},
		}
	})
	return sharedTransport
}

// Credential is the mutable auth pair a request carries against the
// upstream; the cookie rotates as responses refresh it.
type Credential struct {
	Cookie  string
	OrgUUID string
}

// OrgInfo is what organisation discovery learns about an account
type OrgInfo struct {
	UUID         string
	Name         string
	Capabilities []string
}

// IsPro reports whether the account carries a paid capability
func (o *OrgInfo) IsPro() bool {
	for _, c := range o.Capabilities {
		if c == "claude_pro" || c == "claude_max" || c == "raven" {
			return true
		}
	}
	return false
}

// Client drives the claude.ai web-session API
type Client struct {
	http   *http.Client
	cfg    *config.UpstreamConfig
	logger *logger.StyledLogger
}

func NewClient(cfg *config.UpstreamConfig, log *logger.StyledLogger) *Client {
	return &Client{
		http: &http.Client{
			Transport: transportFor(cfg),
			Timeout:   cfg.ResponseTimeout,
		},
		cfg:    cfg,
		logger: log,
	}
}

func (c *Client) endpoint() string {
	if c.cfg.Endpoint != "" {
		return c.cfg.Endpoint
	}
	return constants.DefaultUpstreamEndpoint
}

// ResolveOrg discovers the organisation bound to a cookie. Used by session
// bootstrap when the pool has no cached org for the lease.
func (c *Client) ResolveOrg(ctx context.Context, cred *Credential) (*OrgInfo, error) {
	url := fmt.Sprintf("%s/api/organizations", c.endpoint())
	res, err := c.do(ctx, http.MethodGet, url, nil, cred, false)
	if err != nil {
		return nil, err
	}
	body, err := readAndClose(res)
	if err != nil {
		return nil, err
	}

	first := gjson.GetBytes(body, "0")
	if !first.Exists() || first.Get("uuid").String() == "" {
		return nil, domain.ErrNoValidKey
	}

	info := &OrgInfo{
		UUID: first.Get("uuid").String(),
		Name: first.Get("name").String(),
	}
	for _, capability := range first.Get("capabilities").Array() {
		info.Capabilities = append(info.Capabilities, capability.String())
	}
	return info, nil
}

// CreateConversation creates a fresh upstream conversation for the session
func (c *Client) CreateConversation(ctx context.Context, cred *Credential, convID uuid.UUID, model string, thinking bool) error {
	url := fmt.Sprintf("%s/api/organizations/%s/chat_conversations", c.endpoint(), cred.OrgUUID)

	payload := map[string]any{
		"uuid": convID.String(),
		"name": "",
	}
	if thinking {
		payload["paprika_mode"] = constants.PaprikaModeExtended
		payload["model"] = model
	}

	res, err := c.do(ctx, http.MethodPost, url, payload, cred, false)
	if err != nil {
		return err
	}
	_, err = readAndClose(res)
	if err != nil {
		return err
	}
	c.logger.Debug("conversation created", "conversation", convID.String())
	return nil
}

// DeleteConversation removes an upstream conversation; a 404 is treated as
// already-deleted, not an error
func (c *Client) DeleteConversation(ctx context.Context, cred *Credential, convID uuid.UUID) error {
	url := fmt.Sprintf("%s/api/organizations/%s/chat_conversations/%s", c.endpoint(), cred.OrgUUID, convID)

	res, err := c.do(ctx, http.MethodDelete, url, nil, cred, false)
	if err != nil {
		return err
	}
	if res.StatusCode == http.StatusNotFound {
		drainAndClose(res)
		return nil
	}
	_, err = readAndClose(res)
	return err
}

// Complete sends the assembled request body as the conversation's next turn.
// The caller owns the returned response body; for streaming requests it is a
// live event stream.
func (c *Client) Complete(ctx context.Context, cred *Credential, convID uuid.UUID, body *domain.RequestBody, stream bool) (*http.Response, error) {
	url := fmt.Sprintf("%s/api/organizations/%s/chat_conversations/%s/completion",
		c.endpoint(), cred.OrgUUID, convID)

	res, err := c.do(ctx, http.MethodPost, url, body, cred, stream)
	if err != nil {
		return nil, err
	}
	if err := classifyResponse(res); err != nil {
		drainAndClose(res)
		return nil, err
	}
	return res, nil
}

// do issues one upstream call: impersonation headers on the way out, cookie
// refresh from the response before anything else looks at it.
func (c *Client) do(ctx context.Context, method, url string, payload any, cred *Credential, stream bool) (*http.Response, error) {
	var bodyReader *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal upstream body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req, cred.Cookie)
	if payload != nil {
		req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}
	if stream {
		req.Header.Set(constants.HeaderAccept, constants.ContentTypeEventStream)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	cred.Cookie = RefreshCookie(cred.Cookie, res.Header.Values(constants.HeaderSetCookie))
	return res, nil
}
