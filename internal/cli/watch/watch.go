// Package watch prints judging outcome events as they are published.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"nitz/internal/common/mq"
	"nitz/internal/judge/model"
	"nitz/internal/judge/sandbox/result"

	"github.com/fatih/color"
)

// Watcher follows one outcome topic.
type Watcher struct {
	consumer mq.Consumer
	topic    string
	group    string
}

func New(consumer mq.Consumer, topic, group string) *Watcher {
	return &Watcher{consumer: consumer, topic: topic, group: group}
}

// Run prints one line per event until ctx ends. Undecodable messages are reported and skipped.
func (w *Watcher) Run(ctx context.Context, out io.Writer) error {
	return w.consumer.Consume(ctx, w.topic, w.group, func(ctx context.Context, message *mq.Message) error {
		var event model.OutcomeEvent
		if err := json.Unmarshal(message.Body, &event); err != nil {
			_, _ = fmt.Fprintf(out, "skip message %s: %v\n", message.ID, err)
			return nil
		}
		_, _ = verdictColor(event.Verdict).Fprintln(out, Format(event))
		return nil
	})
}

// Format renders an event as a single line.
func Format(event model.OutcomeEvent) string {
	finished := "-"
	if event.FinishedAt > 0 {
		finished = time.UnixMilli(event.FinishedAt).Format(time.TimeOnly)
	}
	line := fmt.Sprintf("%s %s problem=%d lang=%s mode=%s verdict=%s passed=%d/%d time=%dms mem=%dKB",
		finished, event.SubmissionID, event.ProblemID, event.LanguageID, event.Mode,
		event.Verdict, event.Passed, event.Total, event.TotalTimeMs, event.MaxMemoryKB)
	if event.UserID > 0 {
		line += fmt.Sprintf(" user=%d", event.UserID)
	}
	return line
}

func verdictColor(verdict result.Verdict) *color.Color {
	switch verdict {
	case result.VerdictAC:
		return color.New(color.FgGreen)
	case result.VerdictCE:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
