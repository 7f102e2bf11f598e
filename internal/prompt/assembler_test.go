package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wxrelay/wxrelay/internal/providers"
	"github.com/wxrelay/wxrelay/internal/tokens"
)

func text(role, s string) providers.Message {
	return providers.Message{Role: role, Content: s}
}

func TestBuild_BudgetExhausted(t *testing.T) {
	_, err := Build(text("system", "x"), nil, text("user", "hi"), 0, 100)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
}

func TestBuild_RespectsBudget(t *testing.T) {
	system := text("system", strings.Repeat("s", 40)) // 10 tokens
	var history []providers.Message
	for i := 0; i < 20; i++ {
		history = append(history, text("user", strings.Repeat("h", 40))) // 10 tokens each
	}
	latest := text("user", strings.Repeat("u", 40)) // 10 tokens

	const budget = 100
	got, err := Build(system, history, latest, budget, 1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if total := tokens.MessagesTokens(got); total > budget {
		t.Errorf("assembled prompt is %d tokens, budget %d", total, budget)
	}
	// 100 - 10 system - 10 latest leaves room for exactly 8 history records.
	if len(got) != 10 {
		t.Errorf("got %d messages, want 10 (system + 8 history + latest)", len(got))
	}
	if got[0].Role != "system" || got[len(got)-1].Content != latest.Content {
		t.Error("system must come first and the new message last")
	}
}

func TestBuild_KeepsMostRecentSuffix(t *testing.T) {
	system := text("system", "sys")
	history := []providers.Message{
		text("user", strings.Repeat("a", 400)),  // 100 tokens, must be dropped
		text("assistant", strings.Repeat("b", 40)), // 10 tokens
		text("user", strings.Repeat("c", 40)),      // 10 tokens
	}
	got, err := Build(system, history, text("user", "hi"), 50, 1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// system + 2 kept + latest; kept history must be a contiguous recent
	// suffix in chronological order.
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4", len(got))
	}
	if got[1].Content[0] != 'b' || got[2].Content[0] != 'c' {
		t.Errorf("kept history wrong or reordered: %q, %q", got[1].Content[:1], got[2].Content[:1])
	}
}

func TestBuild_StopsAtFirstOverflow(t *testing.T) {
	// The middle record overflows; the older small record after it (in
	// walk order) must NOT be picked up even though it would fit.
	system := text("system", "sys")
	history := []providers.Message{
		text("user", "tiny"),                      // oldest, would fit
		text("user", strings.Repeat("x", 4000)),   // 1000 tokens, overflows
		text("user", strings.Repeat("y", 40)),     // newest, fits
	}
	got, err := Build(system, history, text("user", "hi"), 50, 1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got) != 3 { // system + newest + latest
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[1].Content[0] != 'y' {
		t.Errorf("unexpected kept record %q", got[1].Content[:1])
	}
}

func TestBuild_TruncatesOversizedLatest(t *testing.T) {
	latest := text("user", strings.Repeat("u", 4000)) // 1000 tokens
	got, err := Build(text("system", "s"), nil, latest, 10000, 100)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n := tokens.MessageTokens(got[len(got)-1]); n > 100 {
		t.Errorf("latest message is %d tokens, single-message cap is 100", n)
	}
}

func TestBuild_TruncatesLatestToBudget(t *testing.T) {
	system := text("system", strings.Repeat("s", 40)) // 10 tokens
	latest := text("user", strings.Repeat("u", 400))  // 100 tokens
	got, err := Build(system, nil, latest, 30, 1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if total := tokens.MessagesTokens(got); total > 30 {
		t.Errorf("total %d tokens exceeds budget 30", total)
	}
}

func TestBuild_MultiPartLatestTruncation(t *testing.T) {
	latest := providers.Message{
		Role: "user",
		Parts: []providers.ContentPart{
			providers.TextPart(strings.Repeat("t", 4000)),
			providers.ImagePart([]byte("img"), "image/png"),
		},
	}
	got, err := Build(text("system", "s"), nil, latest, 10000, 50)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	final := got[len(got)-1]
	if len(final.Parts) != 2 {
		t.Fatalf("image part must survive truncation, got %d parts", len(final.Parts))
	}
	if n := tokens.MessageTokens(final); n > 50 {
		t.Errorf("text part is %d tokens, cap 50", n)
	}
	if final.Parts[1].Type != "image_url" {
		t.Error("image part missing after truncation")
	}
}

// --- compaction variant ---

type fakeClient struct {
	reply string
	err   error
	calls int
	last  providers.CallOptions
}

func (f *fakeClient) Chat(_ context.Context, _ []providers.Message, opts providers.CallOptions) (string, error) {
	f.calls++
	f.last = opts
	return f.reply, f.err
}

func TestCompactor_UnderCeilingPassesThrough(t *testing.T) {
	fc := &fakeClient{reply: "unused"}
	c := &Compactor{Client: fc, SummaryPrompt: "summarize", MaxOutputTokens: 100, ContextCeiling: 10000, Log: zerolog.Nop()}

	history := []providers.Message{text("user", "a"), text("assistant", "b")}
	got := c.Assemble(context.Background(), text("system", "s"), history, text("user", "q"))
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4", len(got))
	}
	if fc.calls != 0 {
		t.Error("no summary call expected under the ceiling")
	}
}

func TestCompactor_CollapsesHistory(t *testing.T) {
	fc := &fakeClient{reply: "the gist"}
	c := &Compactor{Client: fc, SummaryPrompt: "summarize", MaxOutputTokens: 800, ContextCeiling: 1000, Log: zerolog.Nop()}

	var history []providers.Message
	for i := 0; i < 10; i++ {
		history = append(history, text("user", strings.Repeat("h", 400))) // 100 tokens each
	}
	got := c.Assemble(context.Background(), text("system", "s"), history, text("user", "q"))

	if fc.calls != 1 {
		t.Fatalf("summary calls = %d, want 1", fc.calls)
	}
	if fc.last.Temperature == nil || *fc.last.Temperature != 0.2 {
		t.Error("summary call must be low temperature")
	}
	if fc.last.MaxTokens != 512 {
		t.Errorf("summary MaxTokens = %d, want 512", fc.last.MaxTokens)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3 (system + summary + latest)", len(got))
	}
	if got[1].Role != "assistant" || got[1].Content != "the gist" {
		t.Errorf("middle message should be the assistant summary, got %+v", got[1])
	}
}

func TestCompactor_SummaryFailureIsNonFatal(t *testing.T) {
	fc := &fakeClient{err: errors.New("boom")}
	c := &Compactor{Client: fc, SummaryPrompt: "summarize", MaxOutputTokens: 800, ContextCeiling: 1000, Log: zerolog.Nop()}

	history := []providers.Message{text("user", strings.Repeat("h", 4000))}
	got := c.Assemble(context.Background(), text("system", "s"), history, text("user", "q"))
	// History kept as-is when summarization fails.
	if len(got) != 3 || got[1].Content != history[0].Content {
		t.Errorf("failed summarization must keep history untouched, got %d messages", len(got))
	}
}

func TestCompactor_DropsHistoryWhenSummaryTooBig(t *testing.T) {
	fc := &fakeClient{reply: strings.Repeat("s", 8000)} // 2000 tokens
	c := &Compactor{Client: fc, SummaryPrompt: "summarize", MaxOutputTokens: 800, ContextCeiling: 1000, Log: zerolog.Nop()}

	history := []providers.Message{text("user", strings.Repeat("h", 4000))}
	got := c.Assemble(context.Background(), text("system", "s"), history, text("user", "q"))
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2 (system + latest only)", len(got))
	}
}
