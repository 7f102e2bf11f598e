package replydb

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRecordAndStats(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "replies.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := db.RecordReply(ctx, "s1", "m", "gpt-4o-mini", "hi", "hello"); err != nil {
			t.Fatalf("RecordReply: %v", err)
		}
	}
	if err := db.RecordReply(ctx, "s2", "m", "gpt-4o-mini", "q", "a"); err != nil {
		t.Fatalf("RecordReply: %v", err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d sessions, want 2", len(stats))
	}
	if stats[0].SessionID != "s1" || stats[0].Replies != 3 {
		t.Errorf("most active first: got %+v", stats[0])
	}
	if stats[0].LastReply.IsZero() {
		t.Error("LastReply not populated")
	}
}
