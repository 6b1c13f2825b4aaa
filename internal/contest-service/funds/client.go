package funds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	fundsdto "github.com/radieske/prop-contests/internal/contest-service/funds/dto"
)

// Client fala HTTP com o gateway de fundos, com timeout e limite de taxa
type Client struct {
	BaseURL string
	HTTP    *http.Client
	limiter *rate.Limiter
}

func New(base string, timeout time.Duration, rps int) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), rps)
	}
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: timeout},
		limiter: lim,
	}
}

func (c *Client) GetBalance(ctx context.Context, userID string) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, Retryable(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/accounts/"+url.PathEscape(userID)+"/balance", nil)
	if err != nil {
		return 0, Terminal(err)
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return 0, Retryable(err)
	}
	defer res.Body.Close()
	if err := statusError("funds balance", res); err != nil {
		return 0, err
	}
	var out fundsdto.BalanceResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, Retryable(err)
	}
	return out.BalanceCents, nil
}

func (c *Client) Transfer(ctx context.Context, accountRef string, kind TransferKind, amountCents int64, sourceRef string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", Retryable(err)
	}
	body, _ := json.Marshal(fundsdto.TransferRequest{
		AccountRef:  accountRef,
		Kind:        string(kind),
		AmountCents: amountCents,
		SourceRef:   sourceRef,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return "", Terminal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sourceRef)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", Retryable(err)
	}
	defer res.Body.Close()
	if err := statusError("funds transfer", res); err != nil {
		return "", err
	}
	var out fundsdto.TransferResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", Retryable(err)
	}
	if out.TransferRef == "" {
		return "", Retryable(errors.New("funds transfer: empty transfer_ref"))
	}
	return out.TransferRef, nil
}

// statusError classifica a resposta: 5xx e 429 são retentáveis, demais 4xx terminais
func statusError(op string, res *http.Response) error {
	if res.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	err := fmt.Errorf("%s http %d: %s", op, res.StatusCode, bytes.TrimSpace(msg))
	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		return Retryable(err)
	}
	return Terminal(err)
}
