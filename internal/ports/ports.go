package ports

import (
	"context"
	"io"

	"gitreal/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session. Read drains encoded audio until
// the session is stopped; Stop is idempotent and releases the device.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions. The capture device is
// exclusively owned by one session at a time.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioPlayer plays a complete synthesized audio clip to the end.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
}

// HistoryEntry is a role+text pair carried on chat requests. System entries
// are excluded before the history is built.
type HistoryEntry struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnalyzeResult is the dual-shape response of the analyze endpoint: the
// critique view reads Report, the dialogue view reads InitialChat.
type AnalyzeResult struct {
	Report      *domain.CritiqueReport
	InitialChat string
}

// Gateway is the boundary to the external analysis backend. All network
// specifics live behind it; failures are gateway.Error values.
type Gateway interface {
	ExtractProjects(ctx context.Context, doc domain.Document) ([]domain.Project, error)
	Analyze(ctx context.Context, doc domain.Document, repoURL, projectName string) (AnalyzeResult, error)
	Chat(ctx context.Context, message string, history []HistoryEntry) (string, error)
	AddRepo(ctx context.Context, repoURL string) (string, error)
	GenerateResume(ctx context.Context) (string, error)
	Listen(ctx context.Context, audio []byte) (string, error)
	VoiceChat(ctx context.Context, transcript string) (string, error)
	Speak(ctx context.Context, text string) ([]byte, error)
	StartInterview(ctx context.Context) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	ViewChanged(view domain.View)
	DialogueMessageAppended(msg domain.Message)
	CallMessageAppended(msg domain.Message)
	CallStateChanged(state domain.CallState, reason domain.CallReason)
	SessionError(code domain.ErrorCode, detail string)
}
