package bootstrap

import (
	"go.uber.org/zap"

	"gitreal/internal/audio"
	"gitreal/internal/config"
	"gitreal/internal/conversation"
	"gitreal/internal/gateway"
	"gitreal/internal/logging"
	"gitreal/internal/ports"
	"gitreal/internal/session"
	"gitreal/internal/voice"
)

// Services is the assembled runtime graph.
type Services struct {
	Config    config.Config
	Logger    *zap.Logger
	Gateway   ports.Gateway
	Store     *session.Store
	Engine    *conversation.Engine
	Voice     *voice.Controller
	Navigator *session.Navigator
}

// Build wires all backend dependencies for the current runtime.
func Build(events ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger := logging.New(cfg.Log.FilePath)

	gw := gateway.NewClient(gateway.Config{
		BaseURL:      cfg.Backend.BaseURL,
		Timeout:      cfg.Backend.Timeout,
		RepoCacheTTL: cfg.Cache.RepoTTL,
	}, logger)

	store := session.NewStore()
	engine := conversation.NewEngine(gw, clipboard, events, logger)

	voiceController := voice.NewController(
		gw,
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		audio.NewFFPlayPlayer(cfg.Audio.PlayerCommand),
		events,
		voice.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
		},
		logger,
	)

	navigator := session.NewNavigator(store, engine, voiceController, events, logger)

	return Services{
		Config:    cfg,
		Logger:    logger,
		Gateway:   gw,
		Store:     store,
		Engine:    engine,
		Voice:     voiceController,
		Navigator: navigator,
	}, nil
}
