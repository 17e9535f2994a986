package session

import (
	"sync"

	"go.uber.org/zap"

	"gitreal/internal/domain"
	"gitreal/internal/ports"
	"gitreal/internal/repourl"
)

// Conversation is the slice of the dialogue engine the navigator drives.
type Conversation interface {
	Reset()
	SeedInterview(question string)
}

// VoiceCall is the slice of the voice controller the navigator drives.
type VoiceCall interface {
	EndCall()
}

// Navigator is the view state machine. It is the only component allowed to
// change which view is visible, and it performs the side-effecting resets
// that keep conversation state from leaking across modes. Guard failures are
// silent no-ops: the current view is returned unchanged.
type Navigator struct {
	store  *Store
	conv   Conversation
	voice  VoiceCall
	events ports.EventSink
	log    *zap.Logger

	mu   sync.Mutex
	view domain.View
	goal domain.Mode
}

func NewNavigator(store *Store, conv Conversation, voice VoiceCall, events ports.EventSink, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		store:  store,
		conv:   conv,
		voice:  voice,
		events: events,
		log:    logger.Named("navigator"),
		view:   domain.ViewLanding,
	}
}

// View returns the currently visible view.
func (n *Navigator) View() domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view
}

// StartSession stores the uploaded document and moves landing to choice.
// Without a document the transition fails silently back to landing.
func (n *Navigator) StartSession(doc domain.Document) domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.view != domain.ViewLanding || doc.Empty() {
		return n.view
	}
	n.store.SetDocument(doc)
	n.setView(domain.ViewChoice)
	return n.view
}

// ChooseGoal records the chosen top-level goal and opens project selection.
func (n *Navigator) ChooseGoal(goal domain.Mode) domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.view != domain.ViewChoice {
		return n.view
	}
	if goal != domain.ModeCritique && goal != domain.ModeRewrite {
		return n.view
	}
	n.goal = goal
	n.setView(domain.ViewProjectSelect)
	return n.view
}

// ConfirmProject selects a project and enters the goal's view.
func (n *Navigator) ConfirmProject(project domain.Project) domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.view != domain.ViewProjectSelect || project.Name == "" {
		return n.view
	}
	n.enterGoalView(&project)
	return n.view
}

// ConfirmManualURL builds a manual-entry project from a pasted repository
// URL and enters the goal's view. Invalid URLs reject the transition.
func (n *Navigator) ConfirmManualURL(url string) domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.view != domain.ViewProjectSelect || !repourl.Valid(url) {
		return n.view
	}
	project := domain.ManualProject(url)
	n.enterGoalView(&project)
	return n.view
}

// OpenVoiceInterview moves from critique into the live voice interview.
func (n *Navigator) OpenVoiceInterview() domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.view != domain.ViewCritique {
		return n.view
	}
	n.switchMode(domain.ModeInterview)
	n.setView(domain.ViewVoiceInterview)
	return n.view
}

// OpenDialogue moves from critique into the rewrite dialogue.
func (n *Navigator) OpenDialogue() domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.view != domain.ViewCritique {
		return n.view
	}
	n.voice.EndCall()
	n.switchMode(domain.ModeRewrite)
	n.setView(domain.ViewDialogue)
	return n.view
}

// OpenCritique returns to the critique view from the dialogue or the voice
// interview, ending any live call. Moving between dialogue and the voice
// interview always passes through here.
func (n *Navigator) OpenCritique() domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.view != domain.ViewDialogue && n.view != domain.ViewVoiceInterview {
		return n.view
	}
	n.voice.EndCall()
	n.switchMode(domain.ModeCritique)
	n.setView(domain.ViewCritique)
	return n.view
}

// BeginDefenseDialogue enters the dialogue in interview mode seeded with an
// externally produced opening question. If the engine already initialized
// first, the seed loses the race and is dropped (first write wins).
func (n *Navigator) BeginDefenseDialogue(question string) domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.view != domain.ViewCritique && n.view != domain.ViewVoiceInterview {
		return n.view
	}
	n.voice.EndCall()
	n.switchMode(domain.ModeInterview)
	n.conv.SeedInterview(question)
	n.setView(domain.ViewDialogue)
	return n.view
}

// ToLanding abandons the whole session from any view.
func (n *Navigator) ToLanding() domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.voice.EndCall()
	n.conv.Reset()
	n.store.Reset()
	n.goal = domain.ModeNone
	n.setView(domain.ViewLanding)
	return n.view
}

// enterGoalView finishes project selection: it records the project, applies
// the mode-change reset, and shows the critique or dialogue view.
func (n *Navigator) enterGoalView(project *domain.Project) {
	target := domain.ViewCritique
	mode := domain.ModeCritique
	if n.goal == domain.ModeRewrite {
		target = domain.ViewDialogue
		mode = domain.ModeRewrite
	}

	n.voice.EndCall()
	n.store.SetProject(project)
	n.switchMode(mode)
	n.setView(target)
}

// switchMode clears the conversation log before the new mode's first message
// can be appended. Re-entering the same mode keeps the log.
func (n *Navigator) switchMode(mode domain.Mode) {
	if n.store.Mode() != mode {
		n.conv.Reset()
	}
	n.store.SetMode(mode)
}

func (n *Navigator) setView(view domain.View) {
	if n.view == view {
		return
	}
	n.view = view
	n.log.Info("view changed", zap.String("view", string(view)))
	if n.events != nil {
		n.events.ViewChanged(view)
	}
}
