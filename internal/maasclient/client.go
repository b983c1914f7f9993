package maasclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// maxResponseBodyBytes caps how much of a MAAS response this client will
// buffer into memory.
const maxResponseBodyBytes = 4 << 20 // 4 MiB, large enough for a full machine listing

// StatusError is returned when MAAS responds with a 4xx/5xx status. Code is
// the raw HTTP status so callers can map it into their own error taxonomy
// without parsing message text.
type StatusError struct {
	Code int
	Op   string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("maas: %s returned %d: %s", e.Op, e.Code, e.Body)
}

// StatusCode satisfies dispatch's statusCoder interface.
func (e *StatusError) StatusCode() int { return e.Code }

// Credentials holds the three parts of a MAAS API key
// ("consumer_key:token_key:token_secret"), used to sign every request with
// OAuth1 PLAINTEXT per MAAS's API convention.
type Credentials struct {
	ConsumerKey string
	TokenKey    string
	TokenSecret string
}

// Client is a thin, OAuth1-signed HTTP client for the MAAS REST API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	creds       Credentials
	maxElapsed  time.Duration
}

// New builds a Client against baseURL (e.g.
// "http://maas.example.com/MAAS/api/2.0"). maxElapsed bounds how long a
// retried idempotent GET may keep retrying before giving up
// (DefaultMaxElapsed if <= 0).
func New(baseURL string, creds Credentials, httpClient *http.Client, maxElapsed time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if maxElapsed <= 0 {
		maxElapsed = DefaultMaxElapsed
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, creds: creds, maxElapsed: maxElapsed}
}

// DefaultMaxElapsed is the default ceiling on total retry time for an
// idempotent GET.
const DefaultMaxElapsed = 15 * time.Second

// oauthHeader builds the PLAINTEXT-signed Authorization header MAAS
// expects: the "signature" is just "&<token_secret>" since PLAINTEXT never
// actually hashes anything, it only proves possession of the secret over a
// connection the caller is trusted to have secured (TLS, a private
// network) -- matching MAAS's own API server behavior.
func (c *Client) oauthHeader() string {
	nonce := uuid.NewString()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	return fmt.Sprintf(
		`OAuth oauth_version="1.0", oauth_signature_method="PLAINTEXT", oauth_consumer_key=%q, oauth_token=%q, oauth_signature=%q, oauth_nonce=%q, oauth_timestamp=%q`,
		c.creds.ConsumerKey, c.creds.TokenKey, "&"+c.creds.TokenSecret, nonce, timestamp,
	)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.oauthHeader())
	return req, nil
}

// Get issues an idempotent GET against path with query, retrying transient
// failures (5xx, network errors) with exponential backoff up to
// c.maxElapsed.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	full := path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	var body []byte
	op := func() error {
		req, err := c.newRequest(ctx, http.MethodGet, full, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := readLimited(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return &StatusError{Code: resp.StatusCode, Op: full, Body: string(data)}
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(&StatusError{Code: resp.StatusCode, Op: full, Body: string(data)})
		}
		body = data
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxElapsedTime(backoff.NewExponentialBackOff(), c.maxElapsed), ctx)
	if err := backoff.RetryNotify(op, bo, func(err error, wait time.Duration) {
		slog.Warn("maasclient: retrying GET", "path", full, "wait", wait, "error", err)
	}); err != nil {
		return nil, err
	}
	return body, nil
}

// Post issues a form-encoded POST, used for MAAS's "op=" action idiom
// (e.g. POST /machines/{id}/?op=deploy). Not retried: these calls are not
// generally idempotent.
func (c *Client) Post(ctx context.Context, path string, op string, form url.Values) ([]byte, error) {
	if form == nil {
		form = url.Values{}
	}
	full := path
	if op != "" {
		full += "?op=" + op
	}

	req, err := c.newRequest(ctx, http.MethodPost, full, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, full)
}

// PostMultipart issues a multipart/form-data POST, used for script and
// image uploads. fileContent is attached under fileField as filename.
func (c *Client) PostMultipart(ctx context.Context, path, op string, fields map[string]string, fileField, filename string, fileContent []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(fileContent); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	full := path
	if op != "" {
		full += "?op=" + op
	}
	req, err := c.newRequest(ctx, http.MethodPost, full, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req, full)
}

func (c *Client) do(req *http.Request, full string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode, Op: full, Body: string(data)}
	}
	return data, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, maxResponseBodyBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(data) > maxResponseBodyBytes {
		data = data[:maxResponseBodyBytes]
	}
	return data, nil
}
