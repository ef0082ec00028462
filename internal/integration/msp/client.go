// Package msp is the REST client for the service-desk requests API.
package msp

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/config"
	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/markup"
	"github.com/spec-kit/helpdesk-relay/internal/observability"
	"github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

// System labels errors and metrics produced by this client.
const System = "msp"

const acceptHeader = "application/vnd.manageengine.sdp.v3+json"

// Client talks to the requests API. It is safe for concurrent use.
type Client struct {
	http     *resty.Client
	base     string
	logger   *zap.Logger
	encoding string
	pageSize int
	maxPages int
	render   bool
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
func NewClient(cfg config.MSPConfig, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.RequestsURL).
		SetTimeout(cfg.Timeout()).
		SetHeader("authtoken", cfg.APIKey).
		SetHeader("Accept", acceptHeader).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}) //nolint:gosec // self-signed on-premise gateways

	c := &Client{
		http:     httpClient,
		base:     cfg.RequestsURL,
		logger:   zap.NewNop(),
		encoding: cfg.BodyEncoding,
		pageSize: cfg.ListPageSize,
		maxPages: cfg.ListMaxPages,
		render:   cfg.RenderMarkdown,
	}
	if c.encoding == "" {
		c.encoding = config.EncodingJSON
	}
	if c.pageSize <= 0 {
		c.pageSize = 100
	}
	if c.maxPages <= 0 {
		c.maxPages = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListRequests pages through the request list. The scan stops after the configured page limit.
func (c *Client) ListRequests(ctx context.Context) ([]domain.RequestRecord, error) {
	var out []domain.RequestRecord
	for page := 0; page < c.maxPages; page++ {
		listInfo, err := json.Marshal(map[string]any{
			"list_info": map[string]any{
				"row_count":   c.pageSize,
				"start_index": page*c.pageSize + 1,
				"sort_field":  "created_time",
				"sort_order":  "desc",
			},
		})
		if err != nil {
			return nil, errorutil.NewInternalError(err)
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("input_data", string(listInfo)).
			Get(c.base)
		if err := c.check(resp, err, "list requests"); err != nil {
			return nil, err
		}
		body := resp.Body()
		gjson.GetBytes(body, "requests").ForEach(func(_, r gjson.Result) bool {
			out = append(out, parseRequest(r))
			return true
		})
		if !gjson.GetBytes(body, "list_info.has_more_rows").Bool() {
			return out, nil
		}
	}
	c.logger.Warn("request scan stopped at page limit",
		zap.Int("pages", c.maxPages), zap.Int("page_size", c.pageSize))
	return out, nil
}

// CreateRequest opens a request.
func (c *Client) CreateRequest(ctx context.Context, p domain.RequestCreatePayload) (domain.RequestRecord, error) {
	description, err := c.renderText(p.Description)
	if err != nil {
		return domain.RequestRecord{}, err
	}
	payload := requestBody{
		Subject:     p.Subject,
		Description: description,
		Requester:   ref(p.Requester),
		Mode:        ref(p.Mode),
		Priority:    ref(p.Priority),
		Category:    ref(p.Category),
		Site:        ref(p.Site),
		Account:     ref(p.Account),
		Status:      ref(p.Status),
	}
	resp, err := c.send(ctx, http.MethodPost, c.base, envelope{Request: &payload})
	if err := c.check(resp, err, "create request"); err != nil {
		return domain.RequestRecord{}, err
	}
	created := parseRequest(gjson.GetBytes(resp.Body(), "request"))
	if created.Subject == "" {
		created.Subject = p.Subject
	}
	return created, nil
}

// UpdateRequest changes the non-empty fields of u on request id.
func (c *Client) UpdateRequest(ctx context.Context, id string, u domain.RequestUpdate) error {
	payload := requestBody{Subject: u.Subject, Account: u.Account}
	if u.RequesterName != "" || u.RequesterEmail != "" {
		payload.Requester = &domain.NamedRef{Name: u.RequesterName, Email: u.RequesterEmail}
	}
	resp, err := c.send(ctx, http.MethodPut, "/{id}", envelope{Request: &payload}, id)
	return c.check(resp, err, "update request")
}

// AddNotification posts a reply on request id.
func (c *Client) AddNotification(ctx context.Context, id string, n domain.NotificationPayload) error {
	description, err := c.renderText(n.Description)
	if err != nil {
		return err
	}
	to := make([]recipient, 0, len(n.To))
	for _, addr := range n.To {
		to = append(to, recipient{EmailID: addr})
	}
	payload := notificationBody{Subject: n.Subject, Description: description, To: to, Type: n.Type}
	resp, err := c.send(ctx, http.MethodPost, "/{id}/notifications", envelope{Notification: &payload}, id)
	return c.check(resp, err, "add notification")
}

// ListNotifications returns the notification thread of request id.
func (c *Client) ListNotifications(ctx context.Context, id string) ([]domain.NotificationRecord, error) {
	resp, err := c.http.R().SetContext(ctx).SetPathParam("id", id).Get("/{id}/notifications")
	if err := c.check(resp, err, "list notifications"); err != nil {
		return nil, err
	}
	var out []domain.NotificationRecord
	gjson.GetBytes(resp.Body(), "notifications").ForEach(func(_, n gjson.Result) bool {
		out = append(out, domain.NotificationRecord{
			ID:             n.Get("id").String(),
			Subject:        n.Get("subject").String(),
			Description:    n.Get("description").String(),
			SentTime:       millis(n.Get("sent_time.value")),
			RecipientEmail: n.Get("to.0.email_id").String(),
		})
		return true
	})
	return out, nil
}

// GetResolution returns the resolution of request id, reporting false when none was written.
func (c *Client) GetResolution(ctx context.Context, id string) (domain.ResolutionRecord, bool, error) {
	resp, err := c.http.R().SetContext(ctx).SetPathParam("id", id).Get("/{id}/resolutions")
	if err := c.check(resp, err, "get resolution"); err != nil {
		return domain.ResolutionRecord{}, false, err
	}
	r := gjson.GetBytes(resp.Body(), "resolution")
	if !r.Exists() || r.Type == gjson.Null {
		return domain.ResolutionRecord{}, false, nil
	}
	return domain.ResolutionRecord{
		Content:     r.Get("content").String(),
		SubmittedOn: r.Get("submitted_on.display_value").String(),
	}, true, nil
}

// CloseRequest closes request id.
func (c *Client) CloseRequest(ctx context.Context, id string, p domain.ClosurePayload) error {
	payload := requestBody{ClosureInfo: &closureInfo{
		RequesterAckResolution: p.RequesterAckResolution,
		RequesterAckComments:   p.RequesterAckComments,
		ClosureComments:        p.ClosureComments,
		ClosureCode:            &domain.NamedRef{Name: p.ClosureCode},
	}}
	resp, err := c.send(ctx, http.MethodPut, "/{id}/close", envelope{Request: &payload}, id)
	return c.check(resp, err, "close request")
}

// send encodes body with the configured encoding. pathID fills the {id} path parameter when given.
func (c *Client) send(ctx context.Context, method, path string, body envelope, pathID ...string) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if len(pathID) > 0 {
		req.SetPathParam("id", pathID[0])
	}
	switch c.encoding {
	case config.EncodingForm:
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req.SetFormData(map[string]string{"input_data": string(raw)})
	default:
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	c.logger.Debug("msp call", zap.String("method", method), zap.String("path", path), zap.String("encoding", c.encoding))
	return req.Execute(method, path)
}

func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return errorutil.NewUpstreamError(System, op, 0, "", err)
	}
	if resp.IsError() {
		return errorutil.NewUpstreamError(System, op, resp.StatusCode(), resp.String(),
			fmt.Errorf("status %d", resp.StatusCode()))
	}
	if gjson.GetBytes(resp.Body(), "response_status.status").String() == "failed" {
		return errorutil.NewUpstreamError(System, op, resp.StatusCode(), resp.String(),
			fmt.Errorf("response_status failed"))
	}
	return nil
}

func (c *Client) renderText(s string) (string, error) {
	if !c.render || s == "" {
		return s, nil
	}
	out, err := markup.ToHTML(s)
	if err != nil {
		return "", errorutil.NewInternalError(err)
	}
	return out, nil
}

func parseRequest(r gjson.Result) domain.RequestRecord {
	return domain.RequestRecord{
		ID:          r.Get("id").String(),
		Subject:     r.Get("subject").String(),
		Description: r.Get("description").String(),
		RequesterID: r.Get("requester.id").String(),
		PriorityID:  r.Get("priority.id").String(),
		CategoryID:  r.Get("category.id").String(),
		SiteID:      r.Get("site.id").String(),
		AccountID:   r.Get("account.id").String(),
		StatusName:  r.Get("status.name").String(),
	}
}

// millis reads sent_time.value, which the API returns as a numeric string.
func millis(v gjson.Result) int64 {
	if v.Type == gjson.Number {
		return v.Int()
	}
	n, err := strconv.ParseInt(v.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func ref(r domain.NamedRef) *domain.NamedRef {
	if r == (domain.NamedRef{}) {
		return nil
	}
	return &r
}
