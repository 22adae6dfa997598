package llm

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("llm unavailable")

// Completer turns a prompt into a free-form completion. Responses may be
// well-formed structured data or arbitrary prose; callers own the parsing.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
