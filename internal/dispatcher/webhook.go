package dispatcher

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/metrics"
)

const DefaultWebhookTimeout = 10 * time.Second

// Callback headers.
const (
	HeaderJobID     = "X-Web3Event-Job-ID"
	HeaderSignature = "X-Web3Event-Signature"
)

// WebhookPayload is the JSON body posted to a job's callback URL once the
// job reaches a terminal state.
type WebhookPayload struct {
	JobID      string   `json:"job_id"`
	Provider   string   `json:"provider"`
	City       string   `json:"city"`
	Tags       []string `json:"tags"`
	Status     string   `json:"status"`
	Events     int      `json:"events"`
	Error      string   `json:"error,omitempty"`
	Artifacts  []string `json:"artifacts,omitempty"`
	FinishedAt string   `json:"finished_at"`
}

type WebhookResult struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r WebhookResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Breaker is the per-URL circuit breaker consulted before each callback.
type Breaker interface {
	Allow(url string) error
	RecordSuccess(url string)
	RecordFailure(url string)
}

type WebhookMetrics interface {
	WebhookDelivered(statusClass string, duration time.Duration)
}

// WebhookNotifier posts a single HMAC-signed callback per finished job.
// Failed callbacks are not retried.
type WebhookNotifier struct {
	client  *resty.Client
	secret  string
	breaker Breaker        // optional, nil = always allow
	metrics WebhookMetrics // optional, nil = disabled
	log     zerolog.Logger
}

func NewWebhookNotifier(secret string, timeout time.Duration, log zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{
		client: client,
		secret: secret,
		log:    log,
	}
}

func (n *WebhookNotifier) WithBreaker(b Breaker) *WebhookNotifier {
	n.breaker = b
	return n
}

func (n *WebhookNotifier) WithMetrics(m WebhookMetrics) *WebhookNotifier {
	n.metrics = m
	return n
}

// Notify posts the job's terminal status to its callback URL.
// Headers: X-Web3Event-Job-ID, X-Web3Event-Signature (hex HMAC-SHA256 of the body).
func (n *WebhookNotifier) Notify(ctx context.Context, job domain.ScrapeJob) WebhookResult {
	url := job.CallbackURL
	if n.breaker != nil {
		if err := n.breaker.Allow(url); err != nil {
			n.log.Warn().Str("job_id", job.ID.String()).Str("url", url).Msg("callback skipped: circuit open")
			return WebhookResult{Error: err}
		}
	}

	start := time.Now()
	result := n.send(ctx, job)
	result.Duration = time.Since(start)

	if n.breaker != nil {
		if result.IsSuccess() {
			n.breaker.RecordSuccess(url)
		} else {
			n.breaker.RecordFailure(url)
		}
	}
	if n.metrics != nil {
		n.metrics.WebhookDelivered(metrics.ClassifyStatus(result.StatusCode, result.Error), result.Duration)
	}

	evt := n.log.Info()
	if !result.IsSuccess() {
		evt = n.log.Warn().AnErr("error", result.Error)
	}
	evt.Str("job_id", job.ID.String()).Int("status", result.StatusCode).Dur("duration", result.Duration).Msg("callback sent")
	return result
}

func (n *WebhookNotifier) send(ctx context.Context, job domain.ScrapeJob) WebhookResult {
	body, err := json.Marshal(newWebhookPayload(job))
	if err != nil {
		return WebhookResult{Error: fmt.Errorf("marshal: %w", err)}
	}

	res, err := n.client.R().
		SetContext(ctx).
		SetHeader(HeaderJobID, job.ID.String()).
		SetHeader(HeaderSignature, computeSignature(n.secret, body)).
		SetBody(body).
		Post(job.CallbackURL)
	if err != nil {
		return WebhookResult{Error: fmt.Errorf("send: %w", err)}
	}
	return WebhookResult{StatusCode: res.StatusCode()}
}

func newWebhookPayload(job domain.ScrapeJob) WebhookPayload {
	p := WebhookPayload{
		JobID:     job.ID.String(),
		Provider:  string(job.Provider),
		City:      job.City,
		Tags:      job.Tags,
		Status:    string(job.Status),
		Events:    len(job.Events),
		Error:     job.Error,
		Artifacts: job.Artifacts,
	}
	if !job.FinishedAt.IsZero() {
		p.FinishedAt = job.FinishedAt.UTC().Format(time.RFC3339)
	}
	return p
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for callback receivers to verify incoming requests.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
