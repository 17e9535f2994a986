// Package voice drives the live interview turn protocol: capture,
// transcribe, respond, synthesize, play.
package voice

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitreal/internal/domain"
	"gitreal/internal/gateway"
	"gitreal/internal/ports"
)

var ErrCallActive = errors.New("a call is already active")

const defaultOpeningQuestion = "Tell me about yourself."

// Config controls voice call behavior.
type Config struct {
	Audio ports.AudioConfig
}

// Controller manages the half-duplex voice turn cycle. Exactly one of
// listening/processing/speaking holds at any time, guarded at every entry
// point; EndCall is the only transition allowed to interrupt out of order.
type Controller struct {
	gw      ports.Gateway
	capture ports.AudioCapture
	player  ports.AudioPlayer
	events  ports.EventSink
	log     *zap.Logger
	cfg     Config

	mu       sync.Mutex
	state    domain.CallState
	messages []domain.Message

	// epoch increments on EndCall; in-flight pipeline results from an older
	// epoch are dropped at the apply point instead of being cancelled.
	epoch uint64

	active     *activeCapture
	playCancel context.CancelFunc
}

// activeCapture owns the microphone for the scope of one listening state.
// A drain goroutine accumulates encoded audio so the recorder never blocks
// on a full pipe.
type activeCapture struct {
	session ports.AudioSession
	data    chan []byte
}

func NewController(
	gw ports.Gateway,
	capture ports.AudioCapture,
	player ports.AudioPlayer,
	events ports.EventSink,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		gw:      gw,
		capture: capture,
		player:  player,
		events:  events,
		log:     logger.Named("voice"),
		cfg:     cfg,
		state:   domain.CallStateIdle,
	}
}

// StartCall opens a call: it fetches the opening question, speaks it, and
// hands the turn to the user. Any failure returns the controller to idle.
func (c *Controller) StartCall(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.CallStateIdle {
		c.mu.Unlock()
		return ErrCallActive
	}
	epoch := c.epoch
	c.setStateLocked(domain.CallStateStarting, domain.CallReasonStarting)
	c.mu.Unlock()

	question, err := c.gw.StartInterview(ctx)
	if err != nil {
		c.log.Warn("call start failed", zap.Error(err))
		c.failTo(epoch, domain.CallStateIdle, domain.CallReasonStartFailed, err)
		return err
	}
	if strings.TrimSpace(question) == "" {
		question = defaultOpeningQuestion
	}
	if !c.appendIf(epoch, domain.RoleAssistant, question) {
		return nil
	}

	if err := c.speakTurn(ctx, epoch, question); err != nil {
		c.failTo(epoch, domain.CallStateIdle, domain.CallReasonStartFailed, err)
		return err
	}
	c.setStateIf(epoch, domain.CallStateAwaiting, domain.CallReasonYourTurn)
	return nil
}

// PressMic begins capturing. Listening can only begin from awaiting; while
// the assistant is speaking or a turn is processing the press is rejected.
// A denied capture device aborts back to awaiting with a status event.
func (c *Controller) PressMic(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.CallStateAwaiting {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	session, err := c.capture.Start(ctx, c.cfg.Audio)
	if err != nil {
		c.log.Warn("capture start failed", zap.Error(err))
		c.events.SessionError(domain.ErrorCodePermission, err.Error())
		c.events.CallStateChanged(domain.CallStateAwaiting, domain.CallReasonMicDenied)
		return err
	}

	c.mu.Lock()
	if c.state != domain.CallStateAwaiting {
		// state moved while the device was being acquired; release it
		c.mu.Unlock()
		_ = session.Stop()
		return nil
	}
	active := &activeCapture{session: session, data: make(chan []byte, 1)}
	c.active = active
	c.setStateLocked(domain.CallStateListening, domain.CallReasonListening)
	c.mu.Unlock()

	go drainCapture(active)
	return nil
}

// ReleaseMic stops capturing and runs the turn pipeline to completion:
// transcribe, reply, synthesize, play. An empty transcript aborts the turn
// back to awaiting without appending anything. Release without an active
// capture is a no-op, so leaving the interactive surface can be forwarded
// here unconditionally.
func (c *Controller) ReleaseMic(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.CallStateListening || c.active == nil {
		c.mu.Unlock()
		return nil
	}
	active := c.active
	c.active = nil
	epoch := c.epoch
	c.setStateLocked(domain.CallStateProcessing, domain.CallReasonProcessing)
	c.mu.Unlock()

	if err := active.session.Stop(); err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
	audio := <-active.data

	transcript, err := c.gw.Listen(ctx, audio)
	if err != nil {
		c.failTo(epoch, domain.CallStateAwaiting, domain.CallReasonTurnFailed, err)
		return err
	}
	if strings.TrimSpace(transcript) == "" {
		c.setStateIf(epoch, domain.CallStateAwaiting, domain.CallReasonNothingHeard)
		return nil
	}
	if !c.appendIf(epoch, domain.RoleUser, transcript) {
		return nil
	}

	reply, err := c.gw.VoiceChat(ctx, transcript)
	if err != nil {
		c.failTo(epoch, domain.CallStateAwaiting, domain.CallReasonTurnFailed, err)
		return err
	}
	if !c.appendIf(epoch, domain.RoleAssistant, reply) {
		return nil
	}

	if err := c.speakTurn(ctx, epoch, reply); err != nil {
		c.failTo(epoch, domain.CallStateAwaiting, domain.CallReasonTurnFailed, err)
		return err
	}
	c.setStateIf(epoch, domain.CallStateAwaiting, domain.CallReasonYourTurn)
	return nil
}

// EndCall force-stops any in-progress capture and playback, clears the turn
// log, and returns the controller to idle. It is unconditionally successful
// and may interrupt any state.
func (c *Controller) EndCall() {
	c.mu.Lock()
	wasIdle := c.state == domain.CallStateIdle && c.active == nil && len(c.messages) == 0
	c.epoch++
	active := c.active
	c.active = nil
	cancelPlay := c.playCancel
	c.playCancel = nil
	c.messages = nil
	c.state = domain.CallStateIdle
	c.mu.Unlock()

	if active != nil {
		_ = active.session.Stop()
	}
	if cancelPlay != nil {
		cancelPlay()
	}
	if !wasIdle {
		c.events.CallStateChanged(domain.CallStateIdle, domain.CallReasonCallEnded)
	}
}

// Status returns the current call status.
func (c *Controller) Status() domain.CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CallStatus{State: c.state, Active: c.state != domain.CallStateIdle}
}

// Messages returns a snapshot of the turn log in insertion order.
func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// speakTurn synthesizes the text and plays it to completion. Playback is
// cancellable by EndCall; a cancelled play surfaces as a stale-epoch error
// that the caller's failTo drops.
func (c *Controller) speakTurn(ctx context.Context, epoch uint64, text string) error {
	if !c.setStateIf(epoch, domain.CallStateSpeaking, domain.CallReasonAssistantSpeaks) {
		return nil
	}

	audio, err := c.gw.Speak(ctx, text)
	if err != nil {
		return err
	}

	playCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.playCancel = cancel
	c.mu.Unlock()

	err = c.player.Play(playCtx, audio)

	c.mu.Lock()
	if c.playCancel != nil {
		c.playCancel = nil
	}
	c.mu.Unlock()
	cancel()
	return err
}

// failTo surfaces a turn failure and moves to the recovery state, unless the
// call was ended while the step was in flight.
func (c *Controller) failTo(epoch uint64, state domain.CallState, reason domain.CallReason, err error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(state, reason)
	c.mu.Unlock()
	c.events.SessionError(gateway.ErrorCode(err), err.Error())
}

func (c *Controller) setStateIf(epoch uint64, state domain.CallState, reason domain.CallReason) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.setStateLocked(state, reason)
	return true
}

func (c *Controller) appendIf(epoch uint64, role domain.Role, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	msg := domain.Message{ID: uuid.NewString(), Role: role, Text: text}
	c.messages = append(c.messages, msg)
	if c.events != nil {
		c.events.CallMessageAppended(msg)
	}
	return true
}

// setStateLocked requires c.mu held.
func (c *Controller) setStateLocked(state domain.CallState, reason domain.CallReason) {
	c.state = state
	if c.events != nil {
		c.events.CallStateChanged(state, reason)
	}
}

// drainCapture reads encoded audio until the recorder exits and hands the
// buffer to ReleaseMic. The session reports EOF only after the recorder's
// final bytes are buffered, so the tail of the last utterance is never lost.
func drainCapture(active *activeCapture) {
	data, _ := io.ReadAll(active.session)
	active.data <- data
	close(active.data)
}
