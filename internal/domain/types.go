package domain

// View identifies which screen the session currently shows.
type View string

const (
	ViewLanding        View = "landing"
	ViewChoice         View = "choice"
	ViewProjectSelect  View = "project-select"
	ViewCritique       View = "critique"
	ViewDialogue       View = "dialogue"
	ViewVoiceInterview View = "voice-interview"
)

// Mode is the active session mode. The conversation log belongs to exactly
// one mode instance; the navigator clears it when the mode changes.
type Mode string

const (
	ModeNone      Mode = ""
	ModeCritique  Mode = "critique"
	ModeRewrite   Mode = "rewrite"
	ModeInterview Mode = "interview"
)

// Role classifies a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a conversation or voice-turn log. Insertion order
// is load-bearing: the chat endpoint receives the full non-system history.
type Message struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	IsReport bool   `json:"isReport"`
}

// Document is the uploaded source artifact. Immutable once set.
type Document struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// Empty reports whether no document has been uploaded.
func (d Document) Empty() bool {
	return len(d.Content) == 0
}

// Project is a reference extracted from the document or entered manually.
type Project struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	RepositoryURL string   `json:"repository_url,omitempty"`
	Technologies  []string `json:"technologies"`
}

// ManualEntryName is the project name used when the user pastes a raw URL.
const ManualEntryName = "Manual Entry"

// ManualProject builds the synthetic project for a pasted repository URL.
func ManualProject(url string) Project {
	return Project{
		Name:          ManualEntryName,
		Description:   "User provided repository URL",
		RepositoryURL: url,
		Technologies:  []string{},
	}
}

// CritiqueReport is the analysis shape consumed by the critique view.
type CritiqueReport struct {
	Matches          []string `json:"matches"`
	RedFlags         []string `json:"red_flags"`
	MissingGems      []string `json:"missing_gems"`
	CredibilityScore int      `json:"credibility_score"`
	Verdict          string   `json:"verdict"`
}

// CallState models the voice interview turn protocol.
type CallState string

const (
	CallStateIdle       CallState = "idle"
	CallStateStarting   CallState = "starting"
	CallStateSpeaking   CallState = "speaking"
	CallStateAwaiting   CallState = "awaiting"
	CallStateListening  CallState = "listening"
	CallStateProcessing CallState = "processing"
)

// CallReason provides a structured reason for call state transitions.
type CallReason string

const (
	CallReasonIdle            CallReason = "idle"
	CallReasonStarting        CallReason = "starting"
	CallReasonAssistantSpeaks CallReason = "assistant_speaks"
	CallReasonYourTurn        CallReason = "your_turn"
	CallReasonListening       CallReason = "listening"
	CallReasonProcessing      CallReason = "processing"
	CallReasonNothingHeard    CallReason = "nothing_heard"
	CallReasonMicDenied       CallReason = "mic_denied"
	CallReasonTurnFailed      CallReason = "turn_failed"
	CallReasonStartFailed     CallReason = "start_failed"
	CallReasonCallEnded       CallReason = "call_ended"
)

// CallStatus summarizes the voice controller for the UI.
type CallStatus struct {
	State   CallState `json:"state"`
	Active  bool      `json:"active"`
	Message string    `json:"message,omitempty"`
}

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeNetwork       ErrorCode = "network"
	ErrorCodeService       ErrorCode = "service"
	ErrorCodeDecode        ErrorCode = "decode"
	ErrorCodePermission    ErrorCode = "permission"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodePlayback      ErrorCode = "playback"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeClipboard     ErrorCode = "clipboard"
)

// PlaceholderReport is returned when analysis fails so the critique view can
// render explicit empty sections instead of nothing.
func PlaceholderReport() *CritiqueReport {
	return &CritiqueReport{
		Matches:     []string{"Analysis unavailable"},
		RedFlags:    []string{"Could not verify claims"},
		MissingGems: []string{"Try again with a different project"},
		Verdict:     "Analysis failed. Retry when the service is reachable.",
	}
}
