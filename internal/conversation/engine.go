// Package conversation owns the ordered message log for the text dialogue
// and drives request/response turns against the analysis backend.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitreal/internal/domain"
	"gitreal/internal/gateway"
	"gitreal/internal/ports"
)

const (
	msgChannelEstablished = "ENCRYPTED CHANNEL ESTABLISHED."
	msgAssetsAnalyzed     = "ASSETS ANALYZED. MEMORY LOADED."
	msgDefenseMode        = "DEFENSE MODE INITIATED. INTERROGATION LOGGED."
	msgConnectionDropped  = "CONNECTION DROPPED. RETRY."
	msgRepoFailed         = "FAILED TO ACCESS REPO."
	msgCompileRequest     = "COMPILE FINAL ATS DRAFT"
	msgCompiling          = "COMPILING DATA STREAMS... PLEASE WAIT..."
	msgCompileFailed      = "COMPILATION FAILED."
	msgDefaultOpening     = "Analysis complete."
)

// Engine accumulates the dialogue log and talks to the gateway. User entries
// are provisional: they are appended before the backend call resolves and
// never retracted, only followed by a failure entry when the call fails.
type Engine struct {
	gw        ports.Gateway
	clipboard ports.Clipboard
	events    ports.EventSink
	log       *zap.Logger

	mu          sync.Mutex
	messages    []domain.Message
	initialized bool
	seeded      bool
	initBusy    bool

	// serializes Send turns so history is always a prefix of rendered order
	sendMu sync.Mutex
}

func NewEngine(gw ports.Gateway, clipboard ports.Clipboard, events ports.EventSink, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		gw:        gw,
		clipboard: clipboard,
		events:    events,
		log:       logger.Named("conversation"),
	}
}

// Initialize runs the opening analyze call and seeds the log with the fixed
// system markers plus the returned opening message. Seeding and analyze-driven
// initialization are mutually exclusive first steps; whichever happens first
// wins and the other becomes a no-op. On failure the log gets a system error
// entry and initialized stays false so a later attempt can retry.
func (e *Engine) Initialize(ctx context.Context, doc domain.Document, repoURL string) error {
	e.mu.Lock()
	if e.initialized || e.seeded || e.initBusy {
		e.mu.Unlock()
		return nil
	}
	e.initBusy = true
	e.mu.Unlock()

	result, err := e.gw.Analyze(ctx, doc, repoURL, "")

	e.mu.Lock()
	defer e.mu.Unlock()
	e.initBusy = false

	if e.seeded {
		// an interview seed arrived while analyze was in flight; it won
		return nil
	}
	if err != nil {
		e.log.Warn("dialogue initialization failed", zap.Error(err))
		e.append(domain.RoleSystem, fmt.Sprintf("ERROR: %v", err), false)
		e.reportError(err)
		return err
	}

	opening := result.InitialChat
	if opening == "" {
		opening = msgDefaultOpening
	}
	e.append(domain.RoleSystem, msgChannelEstablished, false)
	e.append(domain.RoleSystem, msgAssetsAnalyzed, false)
	e.append(domain.RoleAssistant, opening, false)
	e.initialized = true
	return nil
}

// SeedInterview pre-seeds the log with an externally supplied opening
// question instead of the analyze-driven opening. First write wins.
func (e *Engine) SeedInterview(question string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized || e.seeded || strings.TrimSpace(question) == "" {
		return
	}
	e.append(domain.RoleSystem, msgDefenseMode, false)
	e.append(domain.RoleAssistant, question, false)
	e.seeded = true
	e.initialized = true
}

// Send appends the user entry immediately, then issues a chat turn carrying
// the full prior non-system history. Blank input is a no-op. Failures append
// a system entry and leave the log usable for the next turn.
func (e *Engine) Send(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	history := e.historyLocked()
	e.append(domain.RoleUser, text, false)
	e.mu.Unlock()

	reply, err := e.gw.Chat(ctx, text, history)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.log.Warn("chat turn failed", zap.Error(err))
		e.append(domain.RoleSystem, msgConnectionDropped, false)
		e.reportError(err)
		return
	}
	e.append(domain.RoleAssistant, reply, false)
}

// IngestRepository is an independent side channel: it appends a scanning
// entry, requests extracted bullet points, and appends the result. It does
// not block or interact with Send.
func (e *Engine) IngestRepository(ctx context.Context, url string) {
	if strings.TrimSpace(url) == "" {
		return
	}

	e.mu.Lock()
	e.append(domain.RoleUser, fmt.Sprintf("Scanning Repo: %s", url), false)
	e.mu.Unlock()

	bullets, err := e.gw.AddRepo(ctx, url)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.log.Warn("repository ingestion failed", zap.String("url", url), zap.Error(err))
		e.append(domain.RoleSystem, msgRepoFailed, false)
		e.reportError(err)
		return
	}
	e.append(domain.RoleAssistant, fmt.Sprintf("Extracted Data:\n\n%s\n\nAdd this to 'Projects'?", bullets), false)
}

// CompileReport appends the compile request and progress entries
// synchronously, then the finished report flagged IsReport. The report entry
// is a finished artifact, not a chat turn; consumers render it distinctly and
// it is excluded from chat history like every system entry is.
func (e *Engine) CompileReport(ctx context.Context) {
	e.mu.Lock()
	e.append(domain.RoleUser, msgCompileRequest, false)
	e.append(domain.RoleSystem, msgCompiling, false)
	e.mu.Unlock()

	report, err := e.gw.GenerateResume(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.log.Warn("report compilation failed", zap.Error(err))
		e.append(domain.RoleSystem, msgCompileFailed, false)
		e.reportError(err)
		return
	}
	e.append(domain.RoleAssistant, report, true)

	if e.clipboard != nil {
		if err := e.clipboard.SetText(ctx, report); err != nil && e.events != nil {
			e.events.SessionError(domain.ErrorCodeClipboard, "report ready but clipboard write failed")
		}
	}
}

// Reset empties the log and clears the initialization flags. Called by the
// navigator on mode changes and session restarts.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = nil
	e.initialized = false
	e.seeded = false
}

// Messages returns a snapshot of the log in insertion order.
func (e *Engine) Messages() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Initialized reports whether the opening step has completed.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// historyLocked builds the chat history: every prior non-system entry, in
// insertion order, as role+text wire pairs. Report entries are excluded with
// the same rule that excludes system entries.
func (e *Engine) historyLocked() []ports.HistoryEntry {
	history := make([]ports.HistoryEntry, 0, len(e.messages))
	for _, msg := range e.messages {
		if msg.Role == domain.RoleSystem || msg.IsReport {
			continue
		}
		entry := ports.HistoryEntry{Type: "ai", Text: msg.Text}
		if msg.Role == domain.RoleUser {
			entry.Type = "user"
		}
		history = append(history, entry)
	}
	return history
}

// append is the single place log entries are created; callers hold e.mu.
func (e *Engine) append(role domain.Role, text string, isReport bool) {
	msg := domain.Message{
		ID:       uuid.NewString(),
		Role:     role,
		Text:     text,
		IsReport: isReport,
	}
	e.messages = append(e.messages, msg)
	if e.events != nil {
		e.events.DialogueMessageAppended(msg)
	}
}

func (e *Engine) reportError(err error) {
	if e.events == nil {
		return
	}
	e.events.SessionError(gateway.ErrorCode(err), err.Error())
}
