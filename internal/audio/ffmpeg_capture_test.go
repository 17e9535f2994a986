package audio

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitreal/internal/ports"
)

func TestFFMPEGCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestFFMPEGCaptureStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFMPEGCaptureStopPreservesTrailingAudio(t *testing.T) {
	t.Parallel()

	// the recorder flushes a final chunk on interrupt, like an encoder
	// writing out its container trailer
	script := writeScript(t, "tail.sh",
		"#!/usr/bin/env bash\ntrap 'printf tail; exit 0' INT\nprintf head\nsleep 5 &\nwait $!\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(session, buf); err != nil {
		t.Fatalf("initial read failed: %v", err)
	}
	if string(buf) != "head" {
		t.Fatalf("unexpected initial bytes: %q", string(buf))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	rest, err := io.ReadAll(session)
	if err != nil {
		t.Fatalf("draining after stop failed: %v", err)
	}
	if string(rest) != "tail" {
		t.Fatalf("trailing bytes lost: %q", string(rest))
	}
}

func TestFFMPEGCaptureStopIsIdempotent(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "loop.sh", "#!/usr/bin/env bash\nprintf 'x'\nsleep 5\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestTrimSpaceSafe(t *testing.T) {
	t.Parallel()

	if got := trimSpaceSafe("  hi\n"); got != "hi" {
		t.Fatalf("unexpected trim result: %q", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
