//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// MailpitClient reads the Mailpit inbox over its REST API.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewMailpitClient(apiURL string) *MailpitClient {
	return &MailpitClient{
		baseURL:    apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Subject string           `json:"Subject"`
	Snippet string           `json:"Snippet"`
}

type MailpitAddress struct {
	Address string `json:"Address"`
	Name    string `json:"Name"`
}

// MailpitDetail is a single message with bodies.
type MailpitDetail struct {
	MailpitMessage
	Text string `json:"Text"`
	HTML string `json:"HTML"`
}

type messagesResponse struct {
	Messages []MailpitMessage `json:"messages"`
	Total    int              `json:"messages_count"`
}

func (c *MailpitClient) getJSON(path string, v any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Messages returns the inbox, newest first.
func (c *MailpitClient) Messages() ([]MailpitMessage, error) {
	var result messagesResponse
	if err := c.getJSON("/api/v1/messages", &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// Message returns one message with its text and HTML bodies.
func (c *MailpitClient) Message(id string) (*MailpitDetail, error) {
	var msg MailpitDetail
	if err := c.getJSON("/api/v1/message/"+url.PathEscape(id), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Headers returns the raw headers of one message.
func (c *MailpitClient) Headers(id string) (map[string][]string, error) {
	var headers map[string][]string
	if err := c.getJSON("/api/v1/message/"+url.PathEscape(id)+"/headers", &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// DeleteAll empties the inbox.
func (c *MailpitClient) DeleteAll() error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/v1/messages", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete messages: status %d", resp.StatusCode)
	}
	return nil
}

// WaitForMessages polls until at least count messages arrived or timeout passes.
func (c *MailpitClient) WaitForMessages(count int, timeout time.Duration) ([]MailpitMessage, error) {
	deadline := time.Now().Add(timeout)

	for {
		messages, err := c.Messages()
		if err == nil && len(messages) >= count {
			return messages, nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return nil, fmt.Errorf("timeout waiting for %d messages: %w", count, err)
			}
			return messages, fmt.Errorf("timeout waiting for %d messages, got %d", count, len(messages))
		}
		time.Sleep(100 * time.Millisecond)
	}
}
