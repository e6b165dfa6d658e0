// Package twiliosms отправляет SMS через Twilio REST API (Messages.json).
package twiliosms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ShipTrack/internal/integrations/sender"
	"github.com/pkg/errors"
)

// Twilio принимает Body не длиннее 1600 символов.
const maxBodyLen = 1600

type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpc      *http.Client
}

func New(baseURL, accountSID, authToken, from string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpc:      &http.Client{Timeout: timeout},
	}
}

type errorResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Send(ctx context.Context, msg sender.Message) error {
	body := msg.Text
	if len([]rune(body)) > maxBodyLen {
		body = string([]rune(body)[:maxBodyLen])
	}

	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", msg.To)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}

	var er errorResp
	_ = json.NewDecoder(resp.Body).Decode(&er)
	httpErr := fmt.Errorf("twilio http %d: code=%d %s", resp.StatusCode, er.Code, er.Message)

	// 429 и 5xx повторяем, остальные 4xx нет (неверный номер, нет прав и т.п.)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return httpErr
	}
	return &sender.Permanent{Err: httpErr}
}
