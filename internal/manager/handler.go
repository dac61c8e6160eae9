// Package manager orchestrates tasks: it routes inbound messages to agent
// handlers, records their events and exposes query, cancel, list and
// subscribe operations.
package manager

import (
	"context"
	"strings"

	"github.com/agentry/agentry/pkg/a2a"
)

// AgentHandler is the user-supplied business logic driven by the manager.
//
// Execute receives an Updater bound to the task and drives it to a terminal
// state. Returning a non-nil message selects the messaging-only mode: the
// message is the whole reply and the manager completes the task right
// after emitting it. Returning a nil message with no error completes the
// task unless it was left in input-required or auth-required, which pause
// it for the next user turn. Returning an error fails the task.
//
// The context is cancelled when the task is cancelled; handlers must react
// promptly.
type AgentHandler interface {
	Execute(ctx context.Context, u *Updater) (*a2a.Message, error)

	// Cancel is invoked best-effort after a task transitions to canceled.
	Cancel(ctx context.Context, taskID string) error
}

// EchoHandler is a reference handler used by the sample binary and tests.
// It echoes the last user message and, when the text mentions "draw",
// returns the reply as a text artifact as well.
type EchoHandler struct{}

var _ AgentHandler = (*EchoHandler)(nil)

// Execute echoes the last user message back.
func (h *EchoHandler) Execute(ctx context.Context, u *Updater) (*a2a.Message, error) {
	if err := u.StartWork(); err != nil {
		return nil, err
	}

	input := u.LastUserText()
	if strings.Contains(strings.ToLower(input), "draw") {
		artifact := a2a.Artifact{
			ArtifactID: "echo-drawing",
			Name:       "drawing.txt",
			Parts:      []a2a.Part{a2a.NewTextPart("~(o.o)~ " + input)},
		}
		if err := u.ReturnArtifact(artifact, false, true); err != nil {
			return nil, err
		}
	}

	return nil, u.Complete(u.NewAgentMessage("You said: " + input))
}

// Cancel has nothing to tear down for the echo handler.
func (h *EchoHandler) Cancel(ctx context.Context, taskID string) error {
	return nil
}
