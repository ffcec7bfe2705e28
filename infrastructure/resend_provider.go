package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"

	log "github.com/sirupsen/logrus"
)

// DefaultResendBaseURL is the Resend production API
const DefaultResendBaseURL = "https://api.resend.com"

// ResendProvider sends email through the Resend HTTP API
type ResendProvider struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewResendProvider returns a provider using apiKey. An empty baseURL targets production.
func NewResendProvider(apiKey, baseURL string, timeout time.Duration) *ResendProvider {
	if baseURL == "" {
		baseURL = DefaultResendBaseURL
	}
	return &ResendProvider{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type resendRequest struct {
	From    string              `json:"from"`
	To      []string            `json:"to"`
	Subject string              `json:"subject"`
	HTML    string              `json:"html,omitempty"`
	Text    string              `json:"text,omitempty"`
	Tags    []entities.EmailTag `json:"tags,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send implements interfaces.EmailProvider and returns the Resend message ID.
// Failures are returned as *entities.ProviderError.
func (p *ResendProvider) Send(ctx context.Context, msg entities.EmailMessage) (string, error) {
	if p.APIKey == "" {
		return "", &entities.ProviderError{Kind: entities.ProviderErrorAuth, Message: "missing API key"}
	}

	body, err := json.Marshal(resendRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		Tags:    msg.Tags,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", &entities.ProviderError{Kind: entities.ProviderErrorDelivery, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &entities.ProviderError{Kind: entities.ProviderErrorDelivery, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", providerError(resp.StatusCode, respBody)
	}

	var sent resendResponse
	if err := json.Unmarshal(respBody, &sent); err != nil {
		return "", &entities.ProviderError{Kind: entities.ProviderErrorDelivery, StatusCode: resp.StatusCode, Message: "unreadable response: " + err.Error()}
	}

	log.WithFields(log.Fields{
		"messageId":  sent.ID,
		"recipients": len(msg.To),
	}).Debug("Email accepted by Resend")
	return sent.ID, nil
}

func providerError(status int, body []byte) *entities.ProviderError {
	message := strings.TrimSpace(string(body))
	var parsed resendErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		message = parsed.Message
	}

	kind := entities.ProviderErrorDelivery
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = entities.ProviderErrorAuth
	case http.StatusTooManyRequests:
		kind = entities.ProviderErrorRateLimit
	}

	return &entities.ProviderError{Kind: kind, StatusCode: status, Message: truncate(message, 512)}
}
