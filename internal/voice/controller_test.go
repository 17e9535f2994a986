package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"gitreal/internal/domain"
	"gitreal/internal/ports"
)

func TestStartCallSuccess(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.question = "Walk me through your project."
	events := &fakeEventSink{}
	controller := newTestController(gw, &fakeAudioCapture{}, &fakePlayer{}, events)

	if err := controller.StartCall(context.Background()); err != nil {
		t.Fatalf("start call failed: %v", err)
	}

	status := controller.Status()
	if status.State != domain.CallStateAwaiting || !status.Active {
		t.Fatalf("unexpected status: %+v", status)
	}

	messages := controller.Messages()
	if len(messages) != 1 || messages[0].Role != domain.RoleAssistant {
		t.Fatalf("unexpected messages: %+v", messages)
	}
	if messages[0].Text != "Walk me through your project." {
		t.Fatalf("unexpected opening: %q", messages[0].Text)
	}

	states := events.snapshotStates()
	want := []domain.CallState{
		domain.CallStateStarting,
		domain.CallStateSpeaking,
		domain.CallStateAwaiting,
	}
	if len(states) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %+v", len(want), len(states), states)
	}
	for i, state := range want {
		if states[i].state != state {
			t.Fatalf("transition %d: expected %s, got %s", i, state, states[i].state)
		}
	}
}

func TestStartCallFailureReturnsToIdle(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.startErr = errors.New("backend down")
	events := &fakeEventSink{}
	controller := newTestController(gw, &fakeAudioCapture{}, &fakePlayer{}, events)

	if err := controller.StartCall(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if state := controller.Status().State; state != domain.CallStateIdle {
		t.Fatalf("expected idle after failed start, got %s", state)
	}
	if len(events.snapshotErrors()) == 0 {
		t.Fatalf("expected error event")
	}
}

func TestStartCallWhileActiveIsRejected(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	controller := newTestController(gw, &fakeAudioCapture{}, &fakePlayer{}, &fakeEventSink{})

	if err := controller.StartCall(context.Background()); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if err := controller.StartCall(context.Background()); !errors.Is(err, ErrCallActive) {
		t.Fatalf("expected ErrCallActive, got %v", err)
	}
}

func TestFullTurnAppendsUserAndAssistant(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.transcript = "I built a cache"
	gw.reply = "How did you size it?"
	capture := &fakeAudioCapture{sessions: []ports.AudioSession{newFakeAudioSession("chunk")}}
	controller := newTestController(gw, capture, &fakePlayer{}, &fakeEventSink{})

	if err := controller.StartCall(context.Background()); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if err := controller.PressMic(context.Background()); err != nil {
		t.Fatalf("press failed: %v", err)
	}
	if state := controller.Status().State; state != domain.CallStateListening {
		t.Fatalf("expected listening, got %s", state)
	}
	if err := controller.ReleaseMic(context.Background()); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	messages := controller.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(messages), messages)
	}
	if messages[1].Role != domain.RoleUser || messages[1].Text != "I built a cache" {
		t.Fatalf("unexpected user entry: %+v", messages[1])
	}
	if messages[2].Role != domain.RoleAssistant || messages[2].Text != "How did you size it?" {
		t.Fatalf("unexpected assistant entry: %+v", messages[2])
	}
	if state := controller.Status().State; state != domain.CallStateAwaiting {
		t.Fatalf("expected awaiting after turn, got %s", state)
	}
	if len(gw.listenAudio) == 0 {
		t.Fatalf("expected captured audio to reach transcription")
	}
}

func TestEmptyTranscriptAbortsTurn(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.transcript = "   "
	capture := &fakeAudioCapture{sessions: []ports.AudioSession{newFakeAudioSession("")}}
	events := &fakeEventSink{}
	controller := newTestController(gw, capture, &fakePlayer{}, events)

	if err := controller.StartCall(context.Background()); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if err := controller.PressMic(context.Background()); err != nil {
		t.Fatalf("press failed: %v", err)
	}
	if err := controller.ReleaseMic(context.Background()); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	if len(controller.Messages()) != 1 {
		t.Fatalf("expected only the opening message, got %+v", controller.Messages())
	}
	if state := controller.Status().State; state != domain.CallStateAwaiting {
		t.Fatalf("expected awaiting after abort, got %s", state)
	}

	states := events.snapshotStates()
	if states[len(states)-1].reason != domain.CallReasonNothingHeard {
		t.Fatalf("expected nothing_heard, got %s", states[len(states)-1].reason)
	}
}

func TestTurnFailureRecoversToAwaiting(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.transcript = "hello"
	gw.voiceChatErr = errors.New("model unavailable")
	capture := &fakeAudioCapture{sessions: []ports.AudioSession{newFakeAudioSession("x")}}
	events := &fakeEventSink{}
	controller := newTestController(gw, capture, &fakePlayer{}, events)

	if err := controller.StartCall(context.Background()); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if err := controller.PressMic(context.Background()); err != nil {
		t.Fatalf("press failed: %v", err)
	}
	if err := controller.ReleaseMic(context.Background()); err == nil {
		t.Fatalf("expected turn error")
	}

	messages := controller.Messages()
	if len(messages) != 2 || messages[1].Role != domain.RoleUser {
		t.Fatalf("expected opening + user entry, got %+v", messages)
	}
	if state := controller.Status().State; state != domain.CallStateAwaiting {
		t.Fatalf("expected awaiting after failure, got %s", state)
	}
	if len(events.snapshotErrors()) == 0 {
		t.Fatalf("expected error event")
	}
}

func TestPressMicRejectedWhileNotAwaiting(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	capture := &fakeAudioCapture{sessions: []ports.AudioSession{newFakeAudioSession("x")}}
	controller := newTestController(gw, capture, &fakePlayer{}, &fakeEventSink{})

	// idle: no call yet
	if err := controller.PressMic(context.Background()); err != nil {
		t.Fatalf("press from idle should be a silent no-op: %v", err)
	}
	if capture.started != 0 {
		t.Fatalf("capture must not start outside awaiting")
	}
}

func TestPressMicRejectedWhileSpeaking(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	player := &fakePlayer{block: make(chan struct{})}
	capture := &fakeAudioCapture{sessions: []ports.AudioSession{newFakeAudioSession("x")}}
	controller := newTestController(gw, capture, player, &fakeEventSink{})

	done := make(chan error, 1)
	go func() { done <- controller.StartCall(context.Background()) }()

	player.waitUntilPlaying(t)
	if state := controller.Status().State; state != domain.CallStateSpeaking {
		t.Fatalf("expected speaking, got %s", state)
	}
	if err := controller.PressMic(context.Background()); err != nil {
		t.Fatalf("press during speaking should be a silent no-op: %v", err)
	}
	if capture.started != 0 {
		t.Fatalf("capture must not start while assistant speaks")
	}

	close(player.block)
	if err := <-done; err != nil {
		t.Fatalf("start call failed: %v", err)
	}
}

func TestPressMicPermissionDenied(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	capture := &fakeAudioCapture{startErr: errors.New("device busy")}
	events := &fakeEventSink{}
	controller := newTestController(gw, capture, &fakePlayer{}, events)

	if err := controller.StartCall(context.Background()); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if err := controller.PressMic(context.Background()); err == nil {
		t.Fatalf("expected permission error")
	}

	if state := controller.Status().State; state != domain.CallStateAwaiting {
		t.Fatalf("expected awaiting after denied mic, got %s", state)
	}
	errs := events.snapshotErrors()
	if len(errs) == 0 || errs[len(errs)-1].code != domain.ErrorCodePermission {
		t.Fatalf("expected permission error event, got %+v", errs)
	}
}

func TestReleaseMicWithoutCaptureIsNoop(t *testing.T) {
	t.Parallel()

	controller := newTestController(newFakeGateway(), &fakeAudioCapture{}, &fakePlayer{}, &fakeEventSink{})
	if err := controller.ReleaseMic(context.Background()); err != nil {
		t.Fatalf("release without capture should be a no-op: %v", err)
	}
}

func TestEndCallFromListeningStopsDeviceAndClearsLog(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	session := newFakeAudioSession("x")
	capture := &fakeAudioCapture{sessions: []ports.AudioSession{session}}
	controller := newTestController(gw, capture, &fakePlayer{}, &fakeEventSink{})

	if err := controller.StartCall(context.Background()); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if err := controller.PressMic(context.Background()); err != nil {
		t.Fatalf("press failed: %v", err)
	}

	controller.EndCall()

	if !session.stopped() {
		t.Fatalf("expected capture device to be force-stopped")
	}
	if state := controller.Status().State; state != domain.CallStateIdle {
		t.Fatalf("expected idle after end call, got %s", state)
	}
	if len(controller.Messages()) != 0 {
		t.Fatalf("expected empty turn log after end call")
	}
}

func TestEndCallDuringProcessingDiscardsLateResult(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.transcript = "late answer"
	gw.reply = "late reply"
	gw.listenGate = make(chan struct{})
	capture := &fakeAudioCapture{sessions: []ports.AudioSession{newFakeAudioSession("x")}}
	controller := newTestController(gw, capture, &fakePlayer{}, &fakeEventSink{})

	if err := controller.StartCall(context.Background()); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if err := controller.PressMic(context.Background()); err != nil {
		t.Fatalf("press failed: %v", err)
	}

	released := make(chan error, 1)
	go func() { released <- controller.ReleaseMic(context.Background()) }()

	gw.waitForListen(t)
	controller.EndCall()
	close(gw.listenGate)

	if err := <-released; err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if state := controller.Status().State; state != domain.CallStateIdle {
		t.Fatalf("expected idle to stick after end call, got %s", state)
	}
	if len(controller.Messages()) != 0 {
		t.Fatalf("late pipeline result must be discarded, got %+v", controller.Messages())
	}
}

func TestEndCallIsAlwaysIdempotent(t *testing.T) {
	t.Parallel()

	controller := newTestController(newFakeGateway(), &fakeAudioCapture{}, &fakePlayer{}, &fakeEventSink{})
	controller.EndCall()
	controller.EndCall()
	if state := controller.Status().State; state != domain.CallStateIdle {
		t.Fatalf("expected idle, got %s", state)
	}
}

// --- fakes ---

func newTestController(gw *fakeGateway, capture ports.AudioCapture, player ports.AudioPlayer, events ports.EventSink) *Controller {
	return NewController(gw, capture, player, events, Config{}, nil)
}

type fakeGateway struct {
	mu sync.Mutex

	question string
	startErr error

	transcript  string
	listenErr   error
	listenGate  chan struct{}
	listenSeen  chan struct{}
	listenAudio []byte

	reply        string
	voiceChatErr error

	speech   []byte
	speakErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		question:   "Tell me about your work.",
		speech:     []byte("audio"),
		listenSeen: make(chan struct{}, 8),
	}
}

func (g *fakeGateway) StartInterview(ctx context.Context) (string, error) {
	return g.question, g.startErr
}

func (g *fakeGateway) Listen(ctx context.Context, audio []byte) (string, error) {
	g.mu.Lock()
	g.listenAudio = append([]byte(nil), audio...)
	g.mu.Unlock()
	select {
	case g.listenSeen <- struct{}{}:
	default:
	}
	if g.listenGate != nil {
		<-g.listenGate
	}
	return g.transcript, g.listenErr
}

func (g *fakeGateway) waitForListen(t *testing.T) {
	t.Helper()
	select {
	case <-g.listenSeen:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcription call")
	}
}

func (g *fakeGateway) VoiceChat(ctx context.Context, transcript string) (string, error) {
	return g.reply, g.voiceChatErr
}

func (g *fakeGateway) Speak(ctx context.Context, text string) ([]byte, error) {
	return g.speech, g.speakErr
}

func (g *fakeGateway) ExtractProjects(ctx context.Context, doc domain.Document) ([]domain.Project, error) {
	return nil, nil
}

func (g *fakeGateway) Analyze(ctx context.Context, doc domain.Document, repoURL, projectName string) (ports.AnalyzeResult, error) {
	return ports.AnalyzeResult{}, nil
}

func (g *fakeGateway) Chat(ctx context.Context, message string, history []ports.HistoryEntry) (string, error) {
	return "", nil
}

func (g *fakeGateway) AddRepo(ctx context.Context, repoURL string) (string, error) {
	return "", nil
}

func (g *fakeGateway) GenerateResume(ctx context.Context) (string, error) {
	return "", nil
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	startErr error
	started  int
}

func (c *fakeAudioCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return nil, c.startErr
	}
	if len(c.sessions) == 0 {
		return nil, errors.New("no fake session configured")
	}
	session := c.sessions[0]
	c.sessions = c.sessions[1:]
	c.started++
	return session, nil
}

type fakeAudioSession struct {
	mu      sync.Mutex
	data    []byte
	closed  bool
	stopErr error
}

func newFakeAudioSession(data string) *fakeAudioSession {
	return &fakeAudioSession{data: []byte(data)}
}

func (s *fakeAudioSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

func (s *fakeAudioSession) Close() error { return s.Stop() }

func (s *fakeAudioSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.stopErr
}

func (s *fakeAudioSession) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakePlayer struct {
	mu      sync.Mutex
	played  [][]byte
	playErr error
	block   chan struct{}
	playing chan struct{}
}

func (p *fakePlayer) Play(ctx context.Context, audio []byte) error {
	p.mu.Lock()
	p.played = append(p.played, audio)
	if p.playing != nil {
		close(p.playing)
		p.playing = nil
	}
	block := p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.playErr
}

func (p *fakePlayer) waitUntilPlaying(t *testing.T) {
	t.Helper()
	playing := make(chan struct{})
	p.mu.Lock()
	if len(p.played) > 0 {
		p.mu.Unlock()
		return
	}
	p.playing = playing
	p.mu.Unlock()

	select {
	case <-playing:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback")
	}
}

type stateEvent struct {
	state  domain.CallState
	reason domain.CallReason
}

type errorEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu     sync.Mutex
	states []stateEvent
	errors []errorEvent
}

func (s *fakeEventSink) ViewChanged(view domain.View)               {}
func (s *fakeEventSink) DialogueMessageAppended(msg domain.Message) {}
func (s *fakeEventSink) CallMessageAppended(msg domain.Message)     {}

func (s *fakeEventSink) CallStateChanged(state domain.CallState, reason domain.CallReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, stateEvent{state: state, reason: reason})
}

func (s *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, errorEvent{code: code, detail: detail})
}

func (s *fakeEventSink) snapshotStates() []stateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stateEvent, len(s.states))
	copy(out, s.states)
	return out
}

func (s *fakeEventSink) snapshotErrors() []errorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]errorEvent, len(s.errors))
	copy(out, s.errors)
	return out
}
