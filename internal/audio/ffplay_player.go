package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// FFPlayPlayer plays a synthesized audio clip by feeding ffplay over stdin.
// Play blocks until playback completes or the context is cancelled.
type FFPlayPlayer struct {
	command string
}

func NewFFPlayPlayer(command string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command}
}

func (p *FFPlayPlayer) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return nil
	}

	args := []string{
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "warning",
		"-i", "-",
	}

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Stdin = bytes.NewReader(audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if stderr.Len() > 0 {
			return fmt.Errorf("ffplay failed: %w: %s", err, trimSpaceSafe(stderr.String()))
		}
		return fmt.Errorf("ffplay failed: %w", err)
	}
	return nil
}
