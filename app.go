package main

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"gitreal/internal/bootstrap"
	"gitreal/internal/config"
	"gitreal/internal/domain"
)

const (
	eventView    = "gitreal:view"
	eventMessage = "gitreal:message"
	eventCall    = "gitreal:call"
	eventError   = "gitreal:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	cfg      config.Config
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{app: a})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.ViewChanged(domain.ViewLanding)
}

func (a *App) shutdown(ctx context.Context) {
	if a.services.Voice != nil {
		a.services.Voice.EndCall()
	}
	if a.services.Logger != nil {
		_ = a.services.Logger.Sync()
	}
}

// --- navigation ---

// StartSession stores the uploaded document and opens the choice view.
func (a *App) StartSession(filename string, content []byte) (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.StartSession(domain.Document{Filename: filename, Content: content}), nil
}

// ChooseCritique records the critique goal and opens project selection.
func (a *App) ChooseCritique() (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.ChooseGoal(domain.ModeCritique), nil
}

// ChooseRewrite records the rewrite goal and opens project selection.
func (a *App) ChooseRewrite() (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.ChooseGoal(domain.ModeRewrite), nil
}

// ConfirmProject selects an extracted project and enters the chosen view.
func (a *App) ConfirmProject(project domain.Project) (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.ConfirmProject(project), nil
}

// ConfirmManualURL enters the chosen view with a pasted repository URL.
func (a *App) ConfirmManualURL(url string) (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.ConfirmManualURL(url), nil
}

// OpenVoiceInterview moves from critique into the live voice interview.
func (a *App) OpenVoiceInterview() (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.OpenVoiceInterview(), nil
}

// OpenDialogue moves from critique into the rewrite dialogue.
func (a *App) OpenDialogue() (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.OpenDialogue(), nil
}

// OpenCritique returns to the critique view from dialogue or voice interview.
func (a *App) OpenCritique() (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.OpenCritique(), nil
}

// BeginDefenseDialogue enters the dialogue seeded with an externally
// produced opening question.
func (a *App) BeginDefenseDialogue(question string) (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.BeginDefenseDialogue(question), nil
}

// Disconnect abandons the session and returns to the landing view.
func (a *App) Disconnect() (domain.View, error) {
	if err := a.requireReady(); err != nil {
		return domain.ViewLanding, err
	}
	return a.services.Navigator.ToLanding(), nil
}

// CurrentView returns the visible view.
func (a *App) CurrentView() domain.View {
	if a.services.Navigator == nil {
		return domain.ViewLanding
	}
	return a.services.Navigator.View()
}

// --- project selection / critique ---

// ExtractProjects lists the projects found in the uploaded document.
func (a *App) ExtractProjects() ([]domain.Project, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	doc := a.services.Store.Document()
	if doc.Empty() {
		return []domain.Project{}, nil
	}
	projects, err := a.services.Gateway.ExtractProjects(a.ctx, doc)
	if err != nil {
		a.SessionError(domain.ErrorCodeService, err.Error())
		return []domain.Project{}, nil
	}
	return projects, nil
}

// RunCritique analyzes the document against the selected project. On failure
// it returns an explicit placeholder report so the view renders degraded
// rather than blank.
func (a *App) RunCritique() (*domain.CritiqueReport, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	doc := a.services.Store.Document()
	if doc.Empty() {
		return domain.PlaceholderReport(), nil
	}

	repoURL, projectName := "", ""
	if project := a.services.Store.Project(); project != nil {
		repoURL = project.RepositoryURL
		projectName = project.Name
	}

	result, err := a.services.Gateway.Analyze(a.ctx, doc, repoURL, projectName)
	if err != nil || result.Report == nil {
		if err != nil {
			a.SessionError(domain.ErrorCodeService, err.Error())
		}
		return domain.PlaceholderReport(), nil
	}
	return result.Report, nil
}

// --- dialogue ---

// InitializeDialogue runs the opening analyze turn for the dialogue view.
func (a *App) InitializeDialogue() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	doc := a.services.Store.Document()
	repoURL := ""
	if project := a.services.Store.Project(); project != nil {
		repoURL = project.RepositoryURL
	}
	return a.services.Engine.Initialize(a.ctx, doc, repoURL)
}

// SendMessage sends one dialogue turn.
func (a *App) SendMessage(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Engine.Send(a.ctx, text)
	return nil
}

// AddRepo ingests another repository into the active dialogue.
func (a *App) AddRepo(url string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Engine.IngestRepository(a.ctx, url)
	return nil
}

// CompileReport compiles the final report into the dialogue log.
func (a *App) CompileReport() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Engine.CompileReport(a.ctx)
	return nil
}

// DialogueMessages returns the dialogue log in insertion order.
func (a *App) DialogueMessages() []domain.Message {
	if a.services.Engine == nil {
		return nil
	}
	return a.services.Engine.Messages()
}

// --- voice interview ---

// StartCall opens the live voice call.
func (a *App) StartCall() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Voice.StartCall(a.ctx)
}

// PressMic begins capturing user speech (press-style activation).
func (a *App) PressMic() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Voice.PressMic(a.ctx)
}

// ReleaseMic stops capture and runs the turn to completion. Leaving the
// interactive surface is forwarded here as well; a release with no active
// capture is a no-op.
func (a *App) ReleaseMic() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Voice.ReleaseMic(a.ctx)
}

// EndCall ends the live call from any state.
func (a *App) EndCall() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Voice.EndCall()
	return nil
}

// CallStatus returns the current voice call status.
func (a *App) CallStatus() domain.CallStatus {
	if a.services.Voice == nil {
		return domain.CallStatus{State: domain.CallStateIdle}
	}
	return a.services.Voice.Status()
}

// CallMessages returns the voice turn log in insertion order.
func (a *App) CallMessages() []domain.Message {
	if a.services.Voice == nil {
		return nil
	}
	return a.services.Voice.Messages()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	return map[string]string{
		"backend":          a.cfg.Backend.BaseURL,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"recorder":         a.cfg.Audio.RecorderCommand,
		"player":           a.cfg.Audio.PlayerCommand,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Navigator == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// --- event sink ---

// ViewChanged emits view transitions to the frontend.
func (a *App) ViewChanged(view domain.View) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventView, map[string]string{"view": string(view)})
}

// DialogueMessageAppended emits new dialogue log entries.
func (a *App) DialogueMessageAppended(msg domain.Message) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventMessage, map[string]any{"channel": "dialogue", "message": msg})
}

// CallMessageAppended emits new voice turn log entries.
func (a *App) CallMessageAppended(msg domain.Message) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventMessage, map[string]any{"channel": "call", "message": msg})
}

// CallStateChanged emits voice call lifecycle updates.
func (a *App) CallStateChanged(state domain.CallState, reason domain.CallReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventCall, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": callReasonMessage(reason),
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func callReasonMessage(reason domain.CallReason) string {
	switch reason {
	case domain.CallReasonStarting:
		return "Starting interview..."
	case domain.CallReasonAssistantSpeaks:
		return "Interviewer is speaking..."
	case domain.CallReasonYourTurn:
		return "Your turn. Hold the mic to speak."
	case domain.CallReasonListening:
		return "Listening... release to send"
	case domain.CallReasonProcessing:
		return "Processing your speech..."
	case domain.CallReasonNothingHeard:
		return "Could not hear you. Try again."
	case domain.CallReasonMicDenied:
		return "Microphone access denied"
	case domain.CallReasonTurnFailed:
		return "Something went wrong. Try again."
	case domain.CallReasonStartFailed:
		return "Failed to start. Is the backend running?"
	case domain.CallReasonCallEnded:
		return "Call ended"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeNetwork:
		return "Connection failed"
	case domain.ErrorCodeService:
		return "Service reported an error"
	case domain.ErrorCodeDecode:
		return "Unexpected service response"
	case domain.ErrorCodePermission:
		return "Microphone access denied"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodePlayback:
		return "Audio playback issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct {
	app *App
}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	if c.app == nil || c.app.ctx == nil {
		return fmt.Errorf("clipboard unavailable before startup")
	}
	return runtime.ClipboardSetText(c.app.ctx, text)
}
