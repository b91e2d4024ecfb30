package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultVapiBaseURL = "https://api.vapi.ai"

type VapiConfig struct {
	APIKey        string
	AssistantID   string
	PhoneNumberID string

	// BaseURL overrides the REST endpoint (tests).
	BaseURL string
}

// VapiClient implements Adapter for the Vapi voice-agent API. Vapi has no
// SMS channel.
type VapiClient struct {
	cfg  VapiConfig
	http *http.Client
}

func NewVapiClient(cfg VapiConfig, httpClient *http.Client) *VapiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultVapiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &VapiClient{cfg: cfg, http: httpClient}
}

func (c *VapiClient) Name() string { return "vapi" }

type vapiCustomer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type vapiCallRequest struct {
	AssistantID        string            `json:"assistantId"`
	PhoneNumberID      string            `json:"phoneNumberId"`
	Customer           vapiCustomer      `json:"customer"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	AssistantOverrides *vapiOverrides    `json:"assistantOverrides,omitempty"`
}

type vapiOverrides struct {
	VariableValues map[string]string `json:"variableValues,omitempty"`
}

func (c *VapiClient) InitiateDial(ctx context.Context, req DialRequest) (string, error) {
	if strings.TrimSpace(req.To) == "" {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", Err: errors.New("destination required")}
	}
	payload := vapiCallRequest{
		AssistantID:   c.cfg.AssistantID,
		PhoneNumberID: c.cfg.PhoneNumberID,
		Customer:      vapiCustomer{Number: req.To, Name: req.LeadName},
		Metadata: map[string]string{
			"callId":          req.CallID,
			"leadId":          req.LeadID,
			"agentInstanceId": req.AgentInstanceID,
		},
	}
	if req.ScriptID != "" || req.LeadName != "" {
		payload.AssistantOverrides = &vapiOverrides{VariableValues: map[string]string{
			"scriptId": req.ScriptID,
			"leadName": req.LeadName,
		}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(raw)))}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.ID == "" {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", Err: errors.New("response missing id")}
	}
	return out.ID, nil
}

func (c *VapiClient) SendSMS(ctx context.Context, to, body string) error {
	return &AdapterError{Provider: c.Name(), Op: "sms", Err: ErrUnsupported}
}
