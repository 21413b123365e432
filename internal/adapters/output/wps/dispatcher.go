package wps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"wps-bot-bridge/configs"
	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/pkg/clock"
	"wps-bot-bridge/pkg/signature"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	messagesCreatePath = "/v7/messages/create"
	contentTypeJSON    = "application/json"

	defaultRequestTimeout = 30 * time.Second
	tokenRefreshEarly     = 5 * time.Minute
	maxResponseBytes      = 1 << 20
)

// WaitFunc blocks for d or until ctx is done
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Dispatcher struct - Output adapter sending replies through the WPS open platform
type Dispatcher struct {
	httpClient *http.Client
	baseURL    string
	signer     *signature.Signer
	tokens     oauth2.TokenSource
	policy     RetryPolicy
	wait       WaitFunc
	jitter     func() float64
	clock      clock.Clock
}

// Option customizes a Dispatcher
type Option func(*Dispatcher)

// WithHTTPClient replaces the HTTP client used for sends
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithTokenSource replaces the bearer token source, nil disables the header
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(d *Dispatcher) { d.tokens = ts }
}

// WithRetryPolicy overrides the retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithWait overrides how the dispatcher waits between attempts
func WithWait(w WaitFunc) Option {
	return func(d *Dispatcher) { d.wait = w }
}

// WithJitter overrides the jitter sample source, values in [-1, 1]
func WithJitter(f func() float64) Option {
	return func(d *Dispatcher) { d.jitter = f }
}

// WithClock overrides the clock used for the signing date
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// PolicyFromConfig builds a retry policy from the dispatch section
func PolicyFromConfig(cfg configs.Dispatch) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		policy.BaseDelay = time.Duration(cfg.BaseDelay) * time.Millisecond
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = time.Duration(cfg.MaxDelay) * time.Millisecond
	}
	policy.Jitter = cfg.Jitter
	return policy
}

// NewDispatcher func - Creates the reply dispatcher
func NewDispatcher(wps configs.WPS, dispatch configs.Dispatch, opts ...Option) *Dispatcher {
	timeout := time.Duration(dispatch.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	d := &Dispatcher{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(wps.BaseURL, "/"),
		signer:     signature.NewSigner(wps.AppID, wps.AppSecret),
		policy:     PolicyFromConfig(dispatch),
		wait:       sleepContext,
		jitter:     func() float64 { return rand.Float64()*2 - 1 },
		clock:      clock.Real(),
	}
	if wps.TokenURL != "" {
		d.tokens = NewTokenSource(wps, d.httpClient)
	}

	for _, opt := range opts {
		opt(d)
	}

	logrus.Infof("WPS dispatcher initialized with base URL: %s, max attempts: %d, bearer token: %t",
		d.baseURL, d.policy.MaxAttempts, d.tokens != nil)

	return d
}

// NewTokenSource returns a cached client-credentials token source that
// refreshes shortly before expiry
func NewTokenSource(wps configs.WPS, httpClient *http.Client) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     wps.AppID,
		ClientSecret: wps.AppSecret,
		TokenURL:     wps.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	return oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(ctx), tokenRefreshEarly)
}

type sendRequest struct {
	Type     string          `json:"type"`
	Receiver receiverPayload `json:"receiver"`
	Content  contentPayload  `json:"content"`
}

type receiverPayload struct {
	ReceiverID string `json:"receiver_id"`
	Type       string `json:"type"`
}

type contentPayload struct {
	Text string `json:"text"`
}

type sendResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

func wireType(kind domain.ReplyKind) string {
	if kind == domain.ReplyKindMarkdown {
		return "rich_text"
	}
	return "text"
}

// SendMessage delivers one message, retrying transient failures. Each attempt
// is signed afresh. The returned error wraps domain.ErrDelivery.
func (d *Dispatcher) SendMessage(ctx context.Context, msg domain.OutgoingMessage) (*domain.SendResult, error) {
	if msg.Receiver.ID == "" {
		return nil, fmt.Errorf("%w: empty receiver", domain.ErrDelivery)
	}

	body, err := json.Marshal(sendRequest{
		Type: wireType(msg.Kind),
		Receiver: receiverPayload{
			ReceiverID: msg.Receiver.ID,
			Type:       string(msg.Receiver.Type),
		},
		Content: contentPayload{Text: msg.Text},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", domain.ErrDelivery, err)
	}

	for attempt := 1; ; attempt++ {
		outcome, messageID, err := d.attempt(ctx, body)
		if outcome.Class == OutcomeSuccess {
			logrus.WithFields(logrus.Fields{
				"receiver":    msg.Receiver.ID,
				"in_reply_to": msg.InReplyTo,
				"message_id":  messageID,
				"attempts":    attempt,
			}).Info("Reply delivered")
			return &domain.SendResult{MessageID: messageID, Attempts: attempt}, nil
		}

		decision := d.policy.Decide(attempt, outcome, d.jitter())
		if !decision.Retry {
			return nil, fmt.Errorf("%w: %s failure after %d attempt(s): %v", domain.ErrDelivery, outcome.Class, attempt, err)
		}

		logrus.Warnf("Send attempt %d/%d to %s failed: %v, retrying in %v",
			attempt, d.policy.MaxAttempts, msg.Receiver.ID, err, decision.Wait)

		if werr := d.wait(ctx, decision.Wait); werr != nil {
			return nil, fmt.Errorf("%w: cancelled after %d attempt(s): %v", domain.ErrDelivery, attempt, werr)
		}
	}
}

// attempt performs one signed send
func (d *Dispatcher) attempt(ctx context.Context, body []byte) (Outcome, string, error) {
	signed := d.signer.SignOutbound(http.MethodPost, messagesCreatePath, signature.ContentMD5(body),
		contentTypeJSON, signature.DateHeader(d.clock.Now()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+messagesCreatePath, bytes.NewReader(body))
	if err != nil {
		return Outcome{Class: OutcomePermanent}, "", err
	}
	for k, v := range signed.Headers() {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	if d.tokens != nil {
		token, err := d.tokens.Token()
		if err != nil {
			return Outcome{Class: classifyTokenError(err)}, "", fmt.Errorf("access token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Outcome{Class: classifyTransportError(ctx, err)}, "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	class := classifyStatus(resp.StatusCode)
	if class != OutcomeSuccess {
		return Outcome{
			Class:      class,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), d.clock.Now()),
		}, "", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	var result sendResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return Outcome{Class: OutcomePermanent}, "", fmt.Errorf("decode response: %w", err)
	}
	if result.Code != 0 {
		return Outcome{Class: OutcomePermanent}, "", fmt.Errorf("platform code %d: %s", result.Code, result.Msg)
	}

	return Outcome{Class: OutcomeSuccess}, result.Data.MessageID, nil
}

// classifyTransportError treats network failures as transient unless the
// caller gave up
func classifyTransportError(ctx context.Context, _ error) OutcomeClass {
	if ctx.Err() != nil {
		return OutcomePermanent
	}
	return OutcomeTransient
}

func classifyTokenError(err error) OutcomeClass {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		if class := classifyStatus(retrieveErr.Response.StatusCode); class != OutcomeSuccess {
			return class
		}
		return OutcomePermanent
	}
	return OutcomeTransient
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
