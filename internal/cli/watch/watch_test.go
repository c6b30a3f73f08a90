package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"nitz/internal/common/mq"
	"nitz/internal/judge/model"
	"nitz/internal/judge/sandbox/result"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

type fakeConsumer struct {
	messages []*mq.Message
	topic    string
	group    string
}

func (f *fakeConsumer) Consume(ctx context.Context, topic, group string, handler mq.HandlerFunc) error {
	f.topic = topic
	f.group = group
	for _, msg := range f.messages {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func TestRunPrintsEventsAndSkipsGarbage(t *testing.T) {
	body, _ := json.Marshal(model.OutcomeEvent{
		SubmissionID: "sub-1",
		ProblemID:    2,
		UserID:       5,
		LanguageID:   "python",
		Mode:         "submit",
		Verdict:      result.VerdictWA,
		Passed:       2,
		Total:        3,
		TotalTimeMs:  40,
		MaxMemoryKB:  1024,
	})
	bad := mq.NewMessage([]byte("{"))
	bad.ID = "broken"
	consumer := &fakeConsumer{messages: []*mq.Message{mq.NewMessage(body), bad}}

	var out bytes.Buffer
	if err := New(consumer, "judge.outcome", "judgectl").Run(context.Background(), &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if consumer.topic != "judge.outcome" || consumer.group != "judgectl" {
		t.Fatalf("unexpected subscription %s/%s", consumer.topic, consumer.group)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out.String())
	}
	if !strings.Contains(lines[0], "sub-1") || !strings.Contains(lines[0], "verdict=wrong_answer") ||
		!strings.Contains(lines[0], "passed=2/3") || !strings.Contains(lines[0], "user=5") {
		t.Fatalf("unexpected event line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "skip message broken") {
		t.Fatalf("expected skip line, got %q", lines[1])
	}
}

func TestFormatWithoutUser(t *testing.T) {
	line := Format(model.OutcomeEvent{SubmissionID: "x", Verdict: result.VerdictAC})
	if strings.Contains(line, "user=") {
		t.Fatalf("anonymous event should not print user, got %q", line)
	}
	if !strings.HasPrefix(line, "- x") {
		t.Fatalf("expected placeholder time, got %q", line)
	}
}
