package dingtalk

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"market-sync/internal/syncer"
)

type Options struct {
	Webhook string
	Secret  string
	Timeout time.Duration
	// OnlyProblems suppresses reports of passes that had no failure of any
	// kind.
	OnlyProblems bool
}

// Client posts pass reports to a DingTalk robot webhook.
type Client struct {
	opts Options
	http *http.Client
	now  func() time.Time
}

type response struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Client{opts: opts, http: &http.Client{Timeout: opts.Timeout}, now: time.Now}
}

func (c *Client) NotifyReport(ctx context.Context, rep *syncer.Report) error {
	if rep == nil {
		return nil
	}
	if c.opts.OnlyProblems && rep.Err == "" && len(rep.SchemaFailed) == 0 && rep.Totals().Failed == 0 {
		return nil
	}
	return c.SendMarkdown(ctx, "market sync", rep.Markdown())
}

func (c *Client) SendMarkdown(ctx context.Context, title, text string) error {
	if c.opts.Webhook == "" {
		return fmt.Errorf("dingtalk webhook is empty")
	}
	body, err := json.Marshal(map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]string{"title": title, "text": text},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	endpoint, err := c.signedURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post dingtalk: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post dingtalk: status %d: %s", resp.StatusCode, b)
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out.ErrCode != 0 {
		return fmt.Errorf("dingtalk errcode %d: %s", out.ErrCode, out.ErrMsg)
	}
	return nil
}

func (c *Client) signedURL() (string, error) {
	if c.opts.Secret == "" {
		return c.opts.Webhook, nil
	}
	u, err := url.Parse(c.opts.Webhook)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url: %w", err)
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	q := u.Query()
	q.Set("timestamp", ts)
	q.Set("sign", sign(ts+"\n"+c.opts.Secret, c.opts.Secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sign(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
