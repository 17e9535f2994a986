// Package gateway is the boundary to the external analysis backend. All
// transport detail lives here; callers see typed results or *Error values.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"gitreal/internal/domain"
	"gitreal/internal/ports"
	"gitreal/internal/repourl"
)

// Config controls backend connection settings.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RepoCacheTTL time.Duration
}

// Client implements ports.Gateway over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger

	// bullets from repository ingestion, keyed by owner/repo/branch
	repoCache *cache.Cache
}

var _ ports.Gateway = (*Client)(nil)

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RepoCacheTTL <= 0 {
		cfg.RepoCacheTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		log:       logger.Named("gateway"),
		repoCache: cache.New(cfg.RepoCacheTTL, 10*time.Minute),
	}
}

type projectPayload struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	GithubURL    string   `json:"github_url"`
	Technologies []string `json:"technologies"`
}

type extractResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Projects []projectPayload `json:"projects"`
}

// ExtractProjects uploads the document and returns the projects found in it.
func (c *Client) ExtractProjects(ctx context.Context, doc domain.Document) ([]domain.Project, error) {
	body, err := c.postMultipart(ctx, "/extract_projects", func(w *multipart.Writer) error {
		return writeFilePart(w, "file", doc)
	})
	if err != nil {
		return nil, err
	}

	var resp extractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeErr("extract_projects", err)
	}
	if err := checkStatus(resp.Status, resp.Message); err != nil {
		return nil, err
	}

	projects := make([]domain.Project, 0, len(resp.Projects))
	for _, p := range resp.Projects {
		techs := p.Technologies
		if techs == nil {
			techs = []string{}
		}
		projects = append(projects, domain.Project{
			Name:          p.Name,
			Description:   p.Description,
			RepositoryURL: p.GithubURL,
			Technologies:  techs,
		})
	}
	c.log.Info("projects extracted", zap.Int("count", len(projects)))
	return projects, nil
}

type analyzeResponse struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data"`
	InitialChat string          `json:"initial_chat"`
}

// Analyze submits the document for analysis. The response carries both
// consumption shapes: the critique report and the opening chat line.
func (c *Client) Analyze(ctx context.Context, doc domain.Document, repoURL, projectName string) (ports.AnalyzeResult, error) {
	body, err := c.postMultipart(ctx, "/analyze", func(w *multipart.Writer) error {
		if err := writeFilePart(w, "file", doc); err != nil {
			return err
		}
		if repoURL != "" {
			if err := w.WriteField("github_url", repoURL); err != nil {
				return err
			}
		}
		if projectName != "" {
			if err := w.WriteField("project_name", projectName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ports.AnalyzeResult{}, err
	}

	var resp analyzeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ports.AnalyzeResult{}, decodeErr("analyze", err)
	}
	if err := checkStatus(resp.Status, resp.Message); err != nil {
		return ports.AnalyzeResult{}, err
	}

	report, err := decodeReportPayload(resp.Data)
	if err != nil {
		return ports.AnalyzeResult{}, err
	}
	return ports.AnalyzeResult{Report: report, InitialChat: resp.InitialChat}, nil
}

// decodeReportPayload accepts the report either as a JSON object or as a
// pre-serialized JSON string, which the backend emits interchangeably.
func decodeReportPayload(raw json.RawMessage) (*domain.CritiqueReport, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	payload := []byte(raw)
	if payload[0] == '"' {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return nil, decodeErr("analyze data", err)
		}
		payload = []byte(inner)
	}

	var report domain.CritiqueReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, decodeErr("analyze report", err)
	}
	return &report, nil
}

type chatRequest struct {
	Message string               `json:"message"`
	History []ports.HistoryEntry `json:"history"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat sends one dialogue turn with the full prior non-system history.
func (c *Client) Chat(ctx context.Context, message string, history []ports.HistoryEntry) (string, error) {
	if history == nil {
		history = []ports.HistoryEntry{}
	}
	body, err := c.postJSON(ctx, "/chat", chatRequest{Message: message, History: history})
	if err != nil {
		return "", err
	}
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", decodeErr("chat", err)
	}
	return resp.Response, nil
}

type addRepoRequest struct {
	GithubURL string `json:"github_url"`
}

type addRepoResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Bullets string `json:"bullets"`
}

// AddRepo ingests a repository and returns extracted bullet points. Results
// are cached per owner/repo/branch for the configured TTL.
func (c *Client) AddRepo(ctx context.Context, repoURL string) (string, error) {
	var key string
	if ref, err := repourl.Parse(repoURL); err == nil {
		key = ref.Key()
		if cached, ok := c.repoCache.Get(key); ok {
			c.log.Debug("repo bullets cache hit", zap.String("key", key))
			return cached.(string), nil
		}
	}

	body, err := c.postJSON(ctx, "/add_repo", addRepoRequest{GithubURL: repoURL})
	if err != nil {
		return "", err
	}
	var resp addRepoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", decodeErr("add_repo", err)
	}
	if resp.Status != "success" {
		msg := resp.Message
		if msg == "" {
			msg = resp.Bullets
		}
		return "", &Error{Kind: KindService, Message: msg}
	}

	if key != "" {
		c.repoCache.SetDefault(key, resp.Bullets)
	}
	return resp.Bullets, nil
}

type resumeResponse struct {
	Status   string `json:"status"`
	Resume   string `json:"resume"`
	Response string `json:"response"`
}

// GenerateResume compiles the final report from the session held by the
// backend. A failure may arrive with no status at all, only a `response`
// message; an empty resume next to such a message is a service failure.
func (c *Client) GenerateResume(ctx context.Context) (string, error) {
	body, err := c.postJSON(ctx, "/generate_resume", struct{}{})
	if err != nil {
		return "", err
	}
	var resp resumeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", decodeErr("generate_resume", err)
	}
	if err := checkStatus(resp.Status, resp.Resume); err != nil {
		return "", err
	}
	if resp.Resume == "" && resp.Response != "" {
		return "", &Error{Kind: KindService, Message: resp.Response}
	}
	return resp.Resume, nil
}

type listenResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Listen transcribes captured audio. An empty transcript is a valid result;
// the caller decides whether the turn proceeds.
func (c *Client) Listen(ctx context.Context, audio []byte) (string, error) {
	body, err := c.postMultipart(ctx, "/listen", func(w *multipart.Writer) error {
		return writeFilePart(w, "file", domain.Document{Filename: "audio.webm", Content: audio})
	})
	if err != nil {
		return "", err
	}
	var resp listenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", decodeErr("listen", err)
	}
	if resp.Error != "" {
		c.log.Warn("transcription service reported error", zap.String("error", resp.Error))
	}
	return resp.Text, nil
}

type voiceChatRequest struct {
	Text string `json:"text"`
}

type voiceChatResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

// VoiceChat sends a transcript and returns the interviewer's reply text.
func (c *Client) VoiceChat(ctx context.Context, transcript string) (string, error) {
	body, err := c.postJSON(ctx, "/voice_chat", voiceChatRequest{Text: transcript})
	if err != nil {
		return "", err
	}
	var resp voiceChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", decodeErr("voice_chat", err)
	}
	if resp.Status != "" && resp.Status != "success" {
		return "", &Error{Kind: KindService, Message: resp.Response}
	}
	return resp.Response, nil
}

// Speak synthesizes speech for the given text and returns the audio bytes.
func (c *Client) Speak(ctx context.Context, text string) ([]byte, error) {
	form := url.Values{}
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/speak", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindService, Message: fmt.Sprintf("speak returned status %d", resp.StatusCode)}
	}

	// The backend answers JSON instead of audio when synthesis fails.
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var failure struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &failure); err == nil && failure.Error != "" {
			return nil, &Error{Kind: KindService, Message: failure.Error}
		}
		return nil, &Error{Kind: KindDecode, Message: "speak returned unexpected JSON payload"}
	}
	if len(body) == 0 {
		return nil, &Error{Kind: KindDecode, Message: "speak returned empty audio"}
	}
	return body, nil
}

type startInterviewResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Question string `json:"question"`
}

// StartInterview requests the opening interview question.
func (c *Client) StartInterview(ctx context.Context) (string, error) {
	body, err := c.postJSON(ctx, "/interview_start_voice", struct{}{})
	if err != nil {
		return "", err
	}
	var resp startInterviewResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", decodeErr("interview_start_voice", err)
	}
	if err := checkStatus(resp.Status, resp.Message); err != nil {
		return "", err
	}
	return resp.Question, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Message: err.Error()}
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(encoded))
}

func (c *Client) postMultipart(ctx context.Context, path string, build func(*multipart.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := build(writer); err != nil {
		return nil, &Error{Kind: KindDecode, Message: err.Error()}
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Kind: KindDecode, Message: err.Error()}
	}
	return c.post(ctx, path, writer.FormDataContentType(), &buf)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("path", path), zap.Error(err))
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	c.log.Debug("request complete",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindService, Message: fmt.Sprintf("%s returned status %d", path, resp.StatusCode)}
	}
	return payload, nil
}

func writeFilePart(w *multipart.Writer, field string, doc domain.Document) error {
	name := doc.Filename
	if name == "" {
		name = "document"
	}
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	_, err = part.Write(doc.Content)
	return err
}

func checkStatus(status, message string) error {
	if status == "" || status == "success" {
		return nil
	}
	if message == "" {
		message = "service reported failure"
	}
	return &Error{Kind: KindService, Message: message}
}

func decodeErr(what string, err error) error {
	return &Error{Kind: KindDecode, Message: fmt.Sprintf("could not decode %s response: %v", what, err)}
}
