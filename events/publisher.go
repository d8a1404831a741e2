// Package events publishes run progress to NATS so other processes can
// follow runs live. Publishing is fire-and-forget: a slow or absent
// subscriber never slows the run, and publish failures are only logged.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/scout/research"
)

// subjectPrefix roots all progress subjects.
const subjectPrefix = "scout.run"

// conn is the slice of the NATS connection the publisher needs.
// *nats.Conn satisfies it.
type conn interface {
	Publish(subj string, data []byte) error
}

// payload is the published event shape: the progress event plus a
// publication timestamp.
type payload struct {
	research.Event
	PublishedAt time.Time `json:"published_at"`
}

// Publisher is a research.Observer that mirrors every progress event to
// a NATS subject of the form scout.run.<run-id>.progress.<stage>.
type Publisher struct {
	nc     conn
	logger *slog.Logger
}

// NewPublisher creates a progress publisher over a NATS connection.
func NewPublisher(nc conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, logger: logger}
}

// OnProgress publishes one event. Never blocks the run: errors are
// logged and dropped.
func (p *Publisher) OnProgress(e research.Event) {
	data, err := json.Marshal(payload{Event: e, PublishedAt: time.Now()})
	if err != nil {
		p.logger.Warn("failed to marshal progress event", "stage", e.Stage, "error", err)
		return
	}

	if err := p.nc.Publish(Subject(e.Run, e.Stage), data); err != nil {
		p.logger.Warn("failed to publish progress event",
			"run", e.Run,
			"stage", e.Stage,
			"error", err)
	}
}

// Subject builds the progress subject for a run and stage. Empty parts
// become "unknown" so the subject always has the same depth.
func Subject(runID, stage string) string {
	return fmt.Sprintf("%s.%s.progress.%s", subjectPrefix, sanitizeToken(runID), sanitizeToken(stage))
}

// sanitizeToken replaces characters NATS subjects treat specially.
func sanitizeToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		default:
			return r
		}
	}, s)
}
