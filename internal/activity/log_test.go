package activity

import (
	"context"
	"encoding/json"
	"testing"

	"attendledger/internal/store"
)

func TestAppendStampsAndPersists(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	l := NewLogger(fs)

	if err := l.Append(ctx, Entry{EventID: 7, Kind: "recorded", Detail: "alice sign-in at Office"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(ctx, Entry{EventID: 8, Kind: "recorded"}); err != nil {
		t.Fatal(err)
	}

	records, err := fs.Read(ctx, Collection)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(records))
	}
	var first Entry
	if err := json.Unmarshal(records[0], &first); err != nil {
		t.Fatal(err)
	}
	if first.EventID != 7 || first.At == "" {
		t.Fatalf("entry not stamped: %+v", first)
	}
}
