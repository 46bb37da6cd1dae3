package speech

import (
	"context"
	"fmt"
	"os/exec"
	"sync/atomic"

	"go.uber.org/zap"
)

// ExecEngine synthesizes speech by shelling out to a TTS command (espeak-ng
// by default). One utterance at a time; a new Speak while the previous
// utterance is playing returns an error rather than overlapping audio.
type ExecEngine struct {
	command  string
	logger   *zap.Logger
	speaking atomic.Bool
}

// NewExecEngine creates an engine invoking the given TTS command.
func NewExecEngine(command string, logger *zap.Logger) *ExecEngine {
	return &ExecEngine{command: command, logger: logger}
}

// Available reports whether the TTS command is on PATH.
func (e *ExecEngine) Available(ctx context.Context) bool {
	_, err := exec.LookPath(e.command)
	return err == nil
}

// Speak starts playback and returns immediately.
func (e *ExecEngine) Speak(ctx context.Context, text string, mode Mode) error {
	if text == "" {
		return nil
	}
	if !e.speaking.CompareAndSwap(false, true) {
		return fmt.Errorf("speech engine busy")
	}

	args := []string{"-s", "160"}
	if mode == ModeSnooze {
		// Queued announcements are informational; speak them a touch faster.
		args = []string{"-s", "180"}
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, e.command, args...)
	if err := cmd.Start(); err != nil {
		e.speaking.Store(false)
		return fmt.Errorf("failed to run %s: %w", e.command, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			e.logger.Warn("speech_command_exited_with_error", zap.Error(err))
		}
		e.speaking.Store(false)
	}()
	return nil
}

// Speaking reports whether an utterance is still playing.
func (e *ExecEngine) Speaking(ctx context.Context) bool {
	return e.speaking.Load()
}

var _ Engine = (*ExecEngine)(nil)
