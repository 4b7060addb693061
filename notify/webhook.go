package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"

	"github.com/jacobweinstock/vmedia"
)

const (
	TimestampHeader = "X-Vmedia-Timestamp"
	SignatureHeader = "X-Vmedia-Signature"
)

// Webhook POSTs the notification as JSON, signed with HMAC when secrets are configured.
type Webhook struct {
	// ConsumerURL is the URL notifications are sent to.
	ConsumerURL string
	Logger      logr.Logger
	// LogNotifications logs every sent notification at V(0).
	LogNotifications bool

	httpClient *http.Client
	sig        vmedia.Signature
}

// WebhookOption for setting optional Webhook values.
type WebhookOption func(*Webhook)

// WithSecrets adds signing secrets per algorithm.
func WithSecrets(secrets map[vmedia.Algorithm][]string) WebhookOption {
	return func(w *Webhook) {
		for algo, s := range secrets {
			w.sig.HMAC.Secrets[algo] = append(w.sig.HMAC.Secrets[algo], s...)
		}
	}
}

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.httpClient = c }
}

func WithLogger(l logr.Logger) WebhookOption {
	return func(w *Webhook) { w.Logger = l }
}

func WithLogNotifications(log bool) WebhookOption {
	return func(w *Webhook) { w.LogNotifications = log }
}

// NewWebhook returns a Webhook sending to consumerURL.
//
// Defaults:
//
//	Signature headers: X-Vmedia-Signature-256 and X-Vmedia-Signature-512
//	Signed payload: body followed by the X-Vmedia-Timestamp value
//	HTTP client timeout: 30s
func NewWebhook(consumerURL string, opts ...WebhookOption) (*Webhook, error) {
	u, err := url.Parse(consumerURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook url %q must be http or https", consumerURL)
	}
	w := &Webhook{
		ConsumerURL: consumerURL,
		Logger:      logr.Discard(),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		sig: vmedia.Signature{
			BaseHeader:     SignatureHeader,
			PayloadHeaders: []string{TimestampHeader},
			HMAC:           vmedia.NewHMAC(),
		},
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Notify sends n. Any status other than 2xx is an error.
func (w *Webhook) Notify(ctx context.Context, n vmedia.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.ConsumerURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TimestampHeader, time.Now().UTC().Format(time.RFC3339))

	return w.signAndSend(n, req)
}

func (w *Webhook) signAndSend(n vmedia.Notification, req *http.Request) error {
	if !w.sig.HMAC.Empty() {
		if err := w.sig.AddSignature(req); err != nil {
			return err
		}
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	kvs := []interface{}{"statusCode", resp.StatusCode, "target", n.Target.Name, "runID", n.Result.RunID.String(), "consumerURL", w.ConsumerURL}
	if w.LogNotifications {
		w.Logger.Info("sent webhook notification", kvs...)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: unexpected status code: %d", w.ConsumerURL, resp.StatusCode)
	}

	return nil
}
