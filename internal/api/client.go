// Package api is the client for the external complaints REST API.
//
// A base Client is shared by the whole process. ForSession derives a copy
// bound to one staff session's bearer token and teardown callback; the
// copies share the pooled transport.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// Recorder observes upstream calls.
type Recorder interface {
	ObserveUpstream(operation, outcome string, d time.Duration)
}

// NewHTTPClient creates an HTTP client with a pooled, keep-alive transport.
func NewHTTPClient(timeout time.Duration, maxIdleConns int) *http.Client {
	if maxIdleConns <= 0 {
		maxIdleConns = 100
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   max(maxIdleConns/10, 2),
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Client calls the complaints API.
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	token          string
	onUnauthorized func()
	recorder       Recorder
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, httpClient *http.Client, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse complaints API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("complaints API base URL %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(15*time.Second, 0)
	}
	c := &Client{
		baseURL: u,
		http:    httpClient,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForSession returns a copy of c that authenticates with token. When the
// API answers 401 or 403, onUnauthorized runs before the error is returned.
func (c *Client) ForSession(token string, onUnauthorized func()) *Client {
	cp := *c
	cp.token = token
	cp.onUnauthorized = onUnauthorized
	return &cp
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// call performs one request and classifies the response. There are no retries.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body any) (Payload, error) {
	start := c.now()
	payload, status, err := c.roundTrip(ctx, method, path, query, body)
	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
	}
	if c.recorder != nil {
		c.recorder.ObserveUpstream(op, outcome, c.now().Sub(start))
	}
	if err != nil {
		c.logger.WarnContext(ctx, "complaints API call failed",
			slog.String("operation", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	return payload, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any) (Payload, int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return Payload{}, 0, domain.NewAppError(domain.CodeInternal, "encode request", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return Payload{}, 0, domain.NewAppError(domain.CodeInternal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Payload{}, 0, domain.NewAppError(domain.CodeUnavailable, "No se pudo contactar el servicio de denuncias.", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Payload{}, resp.StatusCode, domain.NewAppError(domain.CodeUnavailable, "No se pudo leer la respuesta del servicio de denuncias.", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return Payload{}, resp.StatusCode, c.statusError(resp.StatusCode, raw)
	}

	payload, err := Classify(raw)
	if err != nil {
		return Payload{}, resp.StatusCode, err
	}
	if payload.Kind == KindError {
		msg := payload.Message
		if msg == "" {
			msg = "El servicio de denuncias informó un error."
		}
		return Payload{}, resp.StatusCode, domain.NewAppError(domain.CodeValidation, msg, nil)
	}
	return payload, resp.StatusCode, nil
}

func (c *Client) statusError(status int, raw []byte) error {
	msg := ""
	if p, err := Classify(raw); err == nil {
		msg = p.Message
	}
	cause := fmt.Errorf("status %d", status)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		if status == http.StatusForbidden {
			return domain.NewAppError(domain.CodeForbidden, orDefault(msg, "El servicio de denuncias denegó el acceso."), cause)
		}
		return domain.NewAppError(domain.CodeUnauthorized, orDefault(msg, "La sesión expiró."), cause)
	case status == http.StatusNotFound:
		return domain.NewAppError(domain.CodeNotFound, orDefault(msg, "No encontrado."), cause)
	case status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return domain.NewAppError(domain.CodeValidation, orDefault(msg, "El servicio de denuncias rechazó la solicitud."), cause)
	default:
		return domain.NewAppError(domain.CodeUnavailable, fmt.Sprintf("Error del servicio de denuncias (estado %d).", status), cause)
	}
}

func outcomeOf(err error) string {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		return "error"
	}
	switch appErr.Code {
	case domain.CodeUnauthorized, domain.CodeForbidden:
		return "auth"
	case domain.CodeNotFound:
		return "not_found"
	case domain.CodeValidation:
		return "rejected"
	case domain.CodeUnrecognized:
		return "unrecognized"
	}
	return "unavailable"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
