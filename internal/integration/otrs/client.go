// Package otrs calls the GenericInterface REST web service of the on-premise ticketing system.
package otrs

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/config"
	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/observability"
	"github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

// System labels errors and metrics produced by this client.
const System = "otrs"

const (
	opTicketCreate = "TicketCreate"
	opTicketUpdate = "TicketUpdate"
)

// Client wraps the TicketCreate and TicketUpdate operations.
type Client struct {
	http      *resty.Client
	logger    *zap.Logger
	userLogin string
	password  string
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithObserver reports every call to obs.
func WithObserver(obs observability.UpstreamObserver) Option {
	return func(c *Client) {
		if obs == nil {
			return
		}
		c.http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			obs.ObserveUpstream(System, resp.Request.Method, resp.StatusCode(), resp.Time())
			return nil
		})
		c.http.OnError(func(req *resty.Request, _ error) {
			obs.ObserveUpstream(System, req.Method, 0, time.Since(req.Time))
		})
	}
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.OTRSConfig, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(cfg.WebserviceURL).
			SetTimeout(cfg.Timeout()).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}),
		logger:    zap.NewNop(),
		userLogin: cfg.UserLogin,
		password:  cfg.Password,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateTicket opens a ticket with its first article.
func (c *Client) CreateTicket(ctx context.Context, t domain.TicketCreate) (domain.TicketCreated, error) {
	body := ticketCreateBody{
		credentials: c.credentials("", ""),
		Ticket: ticketFields{
			Title:        t.Title,
			Queue:        t.Queue,
			State:        t.State,
			Priority:     t.Priority,
			Type:         t.Type,
			CustomerUser: t.CustomerUser,
		},
		Article: toArticle(t.Article),
	}
	raw, err := c.post(ctx, opTicketCreate, body)
	if err != nil {
		return domain.TicketCreated{}, err
	}
	return parseCreated(raw)
}

// CreateTicketRaw forwards an already TicketCreate-shaped payload. Credentials are injected when absent.
func (c *Client) CreateTicketRaw(ctx context.Context, payload map[string]any) (domain.TicketCreated, error) {
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	if s, _ := body["UserLogin"].(string); s == "" {
		body["UserLogin"] = c.userLogin
	}
	if s, _ := body["Password"].(string); s == "" {
		body["Password"] = c.password
	}
	raw, err := c.post(ctx, opTicketCreate, body)
	if err != nil {
		return domain.TicketCreated{}, err
	}
	return parseCreated(raw)
}

// UpdateTicket appends the article of u to its ticket and applies the optional state change.
func (c *Client) UpdateTicket(ctx context.Context, u domain.TicketUpdate) error {
	body := ticketUpdateBody{
		credentials:  c.credentials(u.UserLogin, u.Password),
		TicketNumber: u.TicketNumber,
		Article:      toArticle(u.Article),
	}
	if u.State != "" || u.PendingTime != nil {
		body.Ticket = &ticketState{State: u.State, PendingTime: u.PendingTime}
	}
	_, err := c.post(ctx, opTicketUpdate, body)
	return err
}

// post calls op and returns the raw body. The GenericInterface reports failures as {"Error":{...}} with status 200.
func (c *Client) post(ctx context.Context, op string, body any) ([]byte, error) {
	c.logger.Debug("otrs call", zap.String("operation", op))
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/" + op)
	if err != nil {
		return nil, errorutil.NewUpstreamError(System, op, 0, "", err)
	}
	if resp.IsError() {
		return nil, errorutil.NewUpstreamError(System, op, resp.StatusCode(), resp.String(),
			fmt.Errorf("status %d", resp.StatusCode()))
	}
	raw := resp.Body()
	if e := gjson.GetBytes(raw, "Error"); e.Exists() {
		return nil, errorutil.NewUpstreamError(System, op, resp.StatusCode(), resp.String(),
			fmt.Errorf("%s: %s", e.Get("ErrorCode").String(), e.Get("ErrorMessage").String()))
	}
	return raw, nil
}

func (c *Client) credentials(userLogin, password string) credentials {
	if userLogin == "" {
		userLogin = c.userLogin
	}
	if password == "" {
		password = c.password
	}
	return credentials{UserLogin: userLogin, Password: password}
}

func parseCreated(raw []byte) (domain.TicketCreated, error) {
	res := gjson.ParseBytes(raw)
	created := domain.TicketCreated{
		TicketID:     res.Get("TicketID").String(),
		TicketNumber: res.Get("TicketNumber").String(),
		ArticleID:    res.Get("ArticleID").String(),
	}
	if created.TicketNumber == "" {
		return created, errorutil.NewUpstreamError(System, opTicketCreate, 0, string(raw),
			fmt.Errorf("response carries no TicketNumber"))
	}
	return created, nil
}

func toArticle(a domain.TicketArticle) article {
	return article{
		Subject:              a.Subject,
		Body:                 a.Body,
		From:                 a.From,
		ContentType:          fmt.Sprintf("%s; charset=%s", a.MimeType, a.Charset),
		MimeType:             a.MimeType,
		Charset:              a.Charset,
		CommunicationChannel: a.CommunicationChannel,
		IsVisibleForCustomer: a.IsVisibleForCustomer,
	}
}
