package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartclips-editor/internal/domain"
	"github.com/smartclips-editor/internal/media"
	"github.com/smartclips-editor/internal/recipe"
	"github.com/smartclips-editor/pkg/logger"
)

// Config holds the processing endpoint contract
type Config struct {
	// Endpoint is the base URL mode paths are appended to
	Endpoint string
	// Timeout bounds one request, upload included
	Timeout time.Duration
	// FallbackURL is substituted for the result when the request fails
	FallbackURL string
	// Strict surfaces failures instead of degrading to FallbackURL
	Strict bool
}

// Outcome tells a real result from a fallback one
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDegraded  Outcome = "degraded"
)

// Result is the rendered media of a submission
type Result struct {
	Media    *media.Reference
	Outcome  Outcome
	Duration float64
	// Cause is the masked failure of a degraded result
	Cause     error
	RequestID string
}

// Degraded reports whether Media is the fallback locator
func (r *Result) Degraded() bool {
	return r.Outcome == OutcomeDegraded
}

type processResponse struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"`
}

const maxResponseBytes = 1 << 20

// Pipeline posts edit recipes to the remote processing endpoint
type Pipeline struct {
	cfg        Config
	httpClient *http.Client
	refs       *media.Factory
	log        *logger.Logger
}

// NewPipeline creates a submission pipeline
func NewPipeline(cfg Config, refs *media.Factory, log *logger.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		refs:       refs,
		log:        log.WithComponent("submission"),
	}
}

// Submit validates r and sends it. An invalid recipe fails with
// *domain.InvalidRecipeError before anything is sent.
func (p *Pipeline) Submit(ctx context.Context, ref *media.Reference, r *recipe.Recipe, token string) (*Result, error) {
	payload, err := r.ToRequestPayload()
	if err != nil {
		return nil, err
	}
	return p.Send(ctx, ref, payload, token)
}

// Send posts an already validated payload. Transport and remote failures
// degrade to the fallback locator unless the pipeline is strict; caller
// cancellation and unreadable local media are always returned as errors.
func (p *Pipeline) Send(ctx context.Context, ref *media.Reference, payload recipe.Payload, token string) (*Result, error) {
	requestID := uuid.NewString()
	log := p.log.WithFields("request_id", requestID, "mode", payload.Mode())

	files, err := openAttachments(payload.Attachments(ref))
	if err != nil {
		return nil, err
	}

	reqCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	url := strings.TrimRight(p.cfg.Endpoint, "/") + payload.Path()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, pr)
	if err != nil {
		closeAll(files)
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	go func() {
		pw.CloseWithError(writeBody(mw, payload, files))
	}()

	log.Infow("submitting edit", "url", url, "source", ref.Locator(), "token", logger.SanitizeToken(token))
	start := time.Now()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return p.degrade(ctx, log, requestID, &domain.TransportError{Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return p.degrade(ctx, log, requestID, &domain.TransportError{Err: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p.degrade(ctx, log, requestID, &domain.RemoteProcessingError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 512),
		})
	}

	var out processResponse
	if err := json.Unmarshal(body, &out); err != nil || out.URL == "" {
		return p.degrade(ctx, log, requestID, &domain.RemoteProcessingError{
			StatusCode: resp.StatusCode,
			Body:       "response carries no result url: " + truncate(string(body), 256),
		})
	}

	log.Infow("edit processed", "result_url", out.URL, "elapsed", time.Since(start).String())

	return &Result{
		Media:     p.refs.Remote(out.URL),
		Outcome:   OutcomeSucceeded,
		Duration:  out.Duration,
		RequestID: requestID,
	}, nil
}

func (p *Pipeline) degrade(ctx context.Context, log *logger.Logger, requestID string, cause error) (*Result, error) {
	// The request timeout is ours to mask; the caller giving up is not.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.cfg.Strict {
		log.Errorw("edit submission failed", "error", cause)
		return nil, cause
	}

	log.Errorw("edit submission failed, using fallback media", "error", cause, "fallback_url", p.cfg.FallbackURL)
	return &Result{
		Media:     p.refs.Remote(p.cfg.FallbackURL),
		Outcome:   OutcomeDegraded,
		Cause:     cause,
		RequestID: requestID,
	}, nil
}

type attachmentFile struct {
	recipe.Attachment
	body io.ReadCloser
}

func openAttachments(slots []recipe.Attachment) ([]attachmentFile, error) {
	files := make([]attachmentFile, 0, len(slots))
	for _, slot := range slots {
		if slot.Ref == nil {
			closeAll(files)
			return nil, fmt.Errorf("%w: empty media slot %s", domain.ErrMediaUnavailable, slot.FileField)
		}
		af := attachmentFile{Attachment: slot}
		if slot.Ref.IsLocal() {
			body, err := slot.Ref.Open()
			if err != nil {
				closeAll(files)
				return nil, err
			}
			af.body = body
		} else if _, err := slot.Ref.PlaybackURL(); err != nil {
			closeAll(files)
			return nil, err
		}
		files = append(files, af)
	}
	return files, nil
}

func writeBody(mw *multipart.Writer, payload recipe.Payload, files []attachmentFile) error {
	defer closeAll(files)

	for _, f := range files {
		if f.body == nil {
			if err := mw.WriteField(f.URLField, f.Ref.Locator()); err != nil {
				return err
			}
			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.FileField), quoteEscaper.Replace(f.Ref.Name())))
		h.Set("Content-Type", media.DetectContentType(f.Ref.Name()))
		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f.body); err != nil {
			return fmt.Errorf("stream %s: %w", f.FileField, err)
		}
	}

	if err := payload.WriteFields(mw); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func closeAll(files []attachmentFile) {
	for _, f := range files {
		if f.body != nil {
			f.body.Close()
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
