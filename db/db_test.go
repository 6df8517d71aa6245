package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/chat-narrator/sequencer"
)

// setupDB opens a test database and runs migrations. Tests are skipped when
// TEST_PG_DSN is not set. (testutil.SetupTestDB is not used here to avoid an
// import cycle.)
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := setupDB(t)
	for i := 0; i < 3; i++ {
		if err := Migrate(context.Background(), database); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
}

func TestInsertMessageDeduplicatesOnMessageID(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	id := "test-dup-" + time.Now().Format("20060102150405.000000000")
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM messages WHERE message_id=$1`, id)
	})

	m := sequencer.Message{ID: id, Author: "viewer", Text: "hello", PublishedAt: time.Now().UTC()}
	if err := InsertMessage(ctx, database, "youtube", m, true); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := InsertMessage(ctx, database, "youtube", m, true); err != nil {
		t.Fatalf("conflicting insert should be a no-op, got: %v", err)
	}
	var count int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE message_id=$1`, id).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("message rows = %d, want 1", count)
	}
}

func TestRecentMessagesOrderedNewestFirst(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	prefix := "test-recent-" + time.Now().Format("150405.000000000")
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM messages WHERE message_id LIKE $1`, prefix+"%")
	})

	base := time.Now().UTC().Add(time.Hour) // sort ahead of any leftover rows
	for i := 0; i < 3; i++ {
		m := sequencer.Message{
			ID:          prefix + string(rune('a'+i)),
			Author:      "viewer",
			Text:        "msg",
			PublishedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := InsertMessage(ctx, database, "youtube", m, i%2 == 0); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	entries, err := RecentMessages(ctx, database, 3)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].MessageID != prefix+"c" || entries[2].MessageID != prefix+"a" {
		t.Errorf("unexpected order: %s .. %s", entries[0].MessageID, entries[2].MessageID)
	}
	if entries[1].Spoken {
		t.Errorf("entry b should be marked not spoken")
	}
	if entries[0].SpokenAt == nil {
		t.Errorf("spoken entry missing spoken_at")
	}
}

func TestKVRoundTrip(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM kv WHERE key='test_kv_key'`)
	})

	if v, err := GetKV(ctx, database, "test_kv_key"); err != nil || v != "" {
		t.Fatalf("GetKV on missing key = %q, %v; want empty, nil", v, err)
	}
	if err := SetKV(ctx, database, "test_kv_key", "one"); err != nil {
		t.Fatalf("SetKV: %v", err)
	}
	if err := SetKV(ctx, database, "test_kv_key", "two"); err != nil {
		t.Fatalf("SetKV upsert: %v", err)
	}
	v, err := GetKV(ctx, database, "test_kv_key")
	if err != nil || v != "two" {
		t.Errorf("GetKV = %q, %v; want two", v, err)
	}
}

func TestOAuthTokenRoundTrip(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM oauth_tokens WHERE provider='test-provider'`)
	})

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := UpsertOAuthToken(ctx, database, "test-provider", "access1", "refresh1", expiry, "scope1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	access, refresh, exp, scope, err := GetOAuthToken(ctx, database, "test-provider")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "access1" || refresh != "refresh1" || scope != "scope1" {
		t.Errorf("got (%q,%q,%q), want stored values", access, refresh, scope)
	}
	if !exp.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", exp, expiry)
	}

	// Missing provider returns zero values without error.
	access, _, _, _, err = GetOAuthToken(ctx, database, "absent-provider")
	if err != nil || access != "" {
		t.Errorf("absent provider = %q, %v; want empty, nil", access, err)
	}
}
