package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ridgeline-labs/review-orchestrator/internal/progress"
)

var (
	errMissingContent       = errors.New("request must carry proposal_content or segments")
	errStreamingUnsupported = errors.New("response writer does not support streaming")
)

func marshalEvent(ev progress.Event) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeSSE(w io.Writer, event, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
