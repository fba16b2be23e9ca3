package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/beatreel/internal/config"
)

// Client submits and inspects generation tasks.
// Thread-safe for concurrent use.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	duration    int
	cameraFixed bool
	httpClient  *http.Client
}

// NewClient builds a client from the render configuration. Request
// timeout applies per HTTP call, not to the whole task lifetime.
func NewClient(cfg config.RenderConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60
	}
	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.APIURL, "/"),
		model:       cfg.Model,
		duration:    cfg.Duration,
		cameraFixed: cfg.CameraFixed,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

type submitRequest struct {
	Model   string         `json:"model"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type submitResponse struct {
	ID    string    `json:"id"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmitTask starts a render for the prompt and returns the task ID.
// Generation directives ride on the prompt text itself, which is how
// the API expects duration and camera hints.
func (c *Client) SubmitTask(ctx context.Context, prompt, referenceImage string) (string, error) {
	text := fmt.Sprintf("%s --duration %d --camerafixed %t", prompt, c.duration, c.cameraFixed)
	content := []contentBlock{{Type: "text", Text: text}}

	if referenceImage != "" {
		url, err := imageURLValue(referenceImage)
		if err != nil {
			return "", err
		}
		content = append(content, contentBlock{Type: "image_url", ImageURL: &imageRef{URL: url}})
	}

	body, statusCode, err := c.doRequest(ctx, http.MethodPost, "/contents/generations/tasks",
		submitRequest{Model: c.model, Content: content})
	if err != nil {
		return "", err
	}

	var parsed submitResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse submit response: %w", err)
	}

	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", &TaskError{
			Quota:   isQuotaSignal(statusCode, parsed.Error.Code, parsed.Error.Message),
			Message: fmt.Sprintf("submit rejected: %s", parsed.Error.Message),
		}
	}
	if statusCode != http.StatusOK && statusCode != http.StatusCreated && statusCode != http.StatusAccepted {
		return "", &TaskError{
			Quota:   isQuotaSignal(statusCode, "", string(body)),
			Message: fmt.Sprintf("submit returned status %d: %s", statusCode, summarize(body)),
		}
	}
	if parsed.ID == "" {
		return "", &TaskError{Message: "submit response carries no task id"}
	}

	return parsed.ID, nil
}

// GetTask fetches the current snapshot of a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	body, statusCode, err := c.doRequest(ctx, http.MethodGet,
		"/contents/generations/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse task response: %w", err)
	}

	if code, message, ok := extractError(payload); ok {
		return nil, &TaskError{
			TaskID:  taskID,
			Quota:   isQuotaSignal(statusCode, code, message),
			Message: fmt.Sprintf("task query rejected: %s", message),
		}
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, &TaskError{
			TaskID:  taskID,
			Quota:   isQuotaSignal(statusCode, "", string(body)),
			Message: fmt.Sprintf("task query returned status %d: %s", statusCode, summarize(body)),
		}
	}

	status, _ := payload["status"].(string)
	return &Task{ID: taskID, Status: status, payload: payload}, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, 0, fmt.Errorf("request timed out: %w", err)
		}
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return responseBody, resp.StatusCode, nil
}

// quotaMarkers in an error code or message mean the account ran out of
// renders rather than this task being bad.
var quotaMarkers = []string{"quota", "credit", "balance"}

func isQuotaSignal(statusCode int, code, message string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	s := strings.ToLower(code + " " + message)
	for _, marker := range quotaMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func extractError(payload map[string]interface{}) (code, message string, ok bool) {
	errNode, isMap := payload["error"].(map[string]interface{})
	if !isMap {
		return "", "", false
	}
	message, _ = errNode["message"].(string)
	code, _ = errNode["code"].(string)
	return code, message, message != ""
}

// imageURLValue passes http(s) and data URLs through and inlines local
// files as base64 data URLs.
func imageURLValue(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:") {
		return ref, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("failed to read reference image: %w", err)
	}

	mime := "image/png"
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".webp":
		mime = "image/webp"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
