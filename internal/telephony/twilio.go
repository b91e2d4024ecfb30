package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds credentials and the public base URL Twilio calls back on.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// PublicBaseURL is where /webhooks/twilio/* is reachable from Twilio.
	PublicBaseURL string

	// BaseURL overrides the REST endpoint (tests).
	BaseURL string

	// MachineDetection enables async answering machine detection on each dial.
	MachineDetection bool
	// Record asks Twilio to record the call and post to the recording webhook.
	Record bool
}

// TwilioClient implements Adapter over Twilio's REST API.
type TwilioClient struct {
	cfg  TwilioConfig
	http *http.Client
}

func NewTwilioClient(cfg TwilioConfig, httpClient *http.Client) *TwilioClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TwilioClient{cfg: cfg, http: httpClient}
}

func (c *TwilioClient) Name() string { return "twilio" }

func (c *TwilioClient) InitiateDial(ctx context.Context, req DialRequest) (string, error) {
	if strings.TrimSpace(req.To) == "" {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", Err: errors.New("destination required")}
	}

	answer := c.cfg.PublicBaseURL + "/webhooks/twilio/voice"
	if req.ScriptID != "" {
		answer += "?script=" + url.QueryEscape(req.ScriptID)
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Url", answer)
	form.Set("Method", http.MethodPost)
	form.Set("StatusCallback", c.cfg.PublicBaseURL+"/webhooks/twilio/status")
	form.Set("StatusCallbackMethod", http.MethodPost)
	for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", ev)
	}
	if c.cfg.MachineDetection {
		form.Set("MachineDetection", "Enable")
		form.Set("AsyncAmd", "true")
		form.Set("AsyncAmdStatusCallback", c.cfg.PublicBaseURL+"/webhooks/twilio/amd")
	}
	if c.cfg.Record {
		form.Set("Record", "true")
		form.Set("RecordingStatusCallback", c.cfg.PublicBaseURL+"/webhooks/twilio/recording")
	}

	var out struct {
		SID string `json:"sid"`
	}
	if err := c.post(ctx, "dial", "Calls.json", form, &out); err != nil {
		return "", err
	}
	if out.SID == "" {
		return "", &AdapterError{Provider: c.Name(), Op: "dial", Err: errors.New("response missing sid")}
	}
	return out.SID, nil
}

func (c *TwilioClient) SendSMS(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Body", body)
	return c.post(ctx, "sms", "Messages.json", form, nil)
}

type twilioErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *TwilioClient) post(ctx context.Context, op, resource string, form url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &AdapterError{Provider: c.Name(), Op: op, Err: err}
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &AdapterError{Provider: c.Name(), Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &AdapterError{Provider: c.Name(), Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		var e twilioErrorBody
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			msg = fmt.Sprintf("%d: %s", e.Code, e.Message)
		}
		return &AdapterError{Provider: c.Name(), Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &AdapterError{Provider: c.Name(), Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
