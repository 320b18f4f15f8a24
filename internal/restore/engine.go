package restore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ToolEngine adapts an external restore executable to the Engine interface.
// The request is serialized as JSON on stdin; the tool writes one JSON
// outcome per sub-restore to stdout, which are aggregated into a single
// outcome. Stderr is folded into the error message on a hard failure.
type ToolEngine struct {
	// Path is the restore executable.
	Path string
	// Args precede the request on the command line.
	Args []string
}

// NewToolEngine builds an engine invoking the given executable.
func NewToolEngine(path string, args ...string) *ToolEngine {
	return &ToolEngine{Path: path, Args: args}
}

func (e *ToolEngine) Restore(ctx context.Context, req *Request) (Outcome, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode restore request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, err
	}

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("start restore engine: %w", err)
	}

	outcomes, decodeErr := decodeOutcomes(stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}

	if decodeErr != nil {
		return Outcome{}, fmt.Errorf("decode restore outcome: %w", decodeErr)
	}

	if waitErr != nil && len(outcomes) == 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}

		return Outcome{}, fmt.Errorf("restore engine: %s", msg)
	}

	return CombineOutcomes(outcomes), nil
}

// decodeOutcomes reads a stream of JSON outcome objects until EOF.
func decodeOutcomes(r io.Reader) ([]Outcome, error) {
	dec := json.NewDecoder(r)

	var out []Outcome

	for {
		var o Outcome

		err := dec.Decode(&o)
		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			// Drain so Wait does not block on a full pipe.
			_, _ = io.Copy(io.Discard, r)

			return nil, err
		}

		out = append(out, o)
	}
}
