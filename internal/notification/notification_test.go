package notification

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func TestMulti_FansOutInOrder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, nil, b}
	msg := Message{UserID: "u1", Text: "hello", Category: CategoryInfo}
	m.Notify(context.Background(), msg)
	if len(a.Messages()) != 1 || len(b.Messages()) != 1 {
		t.Fatalf("recorded = %d, %d; want 1, 1", len(a.Messages()), len(b.Messages()))
	}
	if a.Messages()[0].Text != "hello" {
		t.Errorf("Text = %q, want %q", a.Messages()[0].Text, "hello")
	}
}

func TestRecorder_For(t *testing.T) {
	r := &Recorder{}
	r.Notify(context.Background(), Message{UserID: "u1", Text: "a"})
	r.Notify(context.Background(), Message{UserID: "u2", Text: "b"})
	r.Notify(context.Background(), Message{UserID: "u1", Text: "c"})
	got := r.For("u1")
	if len(got) != 2 || got[0].Text != "a" || got[1].Text != "c" {
		t.Errorf("For(u1) = %+v, want messages a and c", got)
	}
}

func TestLogSink_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	sink.Notify(context.Background(), Message{
		UserID: "u1", Text: "You have been removed", Category: CategoryWarning,
		Action: ActionTeamRemoved, Related: &Entity{Type: "team", ID: "t1"},
	})
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["msg"] != "You have been removed" {
		t.Errorf("msg = %v, want notification text", rec["msg"])
	}
	if rec["related_id"] != "t1" {
		t.Errorf("related_id = %v, want t1", rec["related_id"])
	}
}

// fakeDB implements dbtx for tests, capturing Exec arguments.
type fakeDB struct {
	execQuery string
	execArgs  []any
	execErr   error
	affected  int64
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.execQuery = query
	f.execArgs = args
	if f.execErr != nil {
		return nil, f.execErr
	}
	return fakeResult(f.affected), nil
}

func (f *fakeDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("query not supported by fake")
}

func TestStore_NotifyInsertsRow(t *testing.T) {
	db := &fakeDB{}
	s := NewStore(db, nil)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.Notify(context.Background(), Message{UserID: "u1", Text: "added", Related: &Entity{Type: "team", ID: "t1"}})

	if !strings.Contains(db.execQuery, "INSERT INTO notifications") {
		t.Fatalf("query = %q, want insert", db.execQuery)
	}
	if len(db.execArgs) != 7 {
		t.Fatalf("args = %d, want 7", len(db.execArgs))
	}
	if db.execArgs[1] != "u1" {
		t.Errorf("user_id = %v, want u1", db.execArgs[1])
	}
	if db.execArgs[3] != string(CategoryInfo) {
		t.Errorf("category = %v, want default info", db.execArgs[3])
	}
	if rel := db.execArgs[5].(sql.NullString); !rel.Valid || rel.String != "t1" {
		t.Errorf("related_id = %+v, want t1", rel)
	}
	if db.execArgs[6] != fixed {
		t.Errorf("created_at = %v, want %v", db.execArgs[6], fixed)
	}
}

func TestStore_NotifyErrorIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	db := &fakeDB{execErr: errors.New("db down")}
	s := NewStore(db, slog.New(slog.NewJSONHandler(&buf, nil)))
	s.Notify(context.Background(), Message{UserID: "u1", Text: "x"})
	if !strings.Contains(buf.String(), "store notification failed") {
		t.Errorf("log = %q, want failure logged", buf.String())
	}
}

func TestStore_MarkAllRead(t *testing.T) {
	db := &fakeDB{affected: 3}
	n, err := NewStore(db, nil).MarkAllRead(context.Background(), "u1")
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if n != 3 {
		t.Errorf("n = %d, want 3", n)
	}
}

func TestStore_ListForUserPropagatesError(t *testing.T) {
	_, err := NewStore(&fakeDB{}, nil).ListForUser(context.Background(), "u1", 0)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEncode(t *testing.T) {
	raw, err := encode(Message{UserID: "u1", Text: "hi", Category: CategorySuccess, Action: ActionTeamJoined, Related: &Entity{Type: "team", ID: "t1"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got payload
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := payload{UserID: "u1", Message: "hi", Category: "success", Action: "team_joined", RelatedType: "team", RelatedID: "t1"}
	if got != want {
		t.Errorf("payload = %+v, want %+v", got, want)
	}
}

func TestRedisPublisher_UnreachableServerIsLogged(t *testing.T) {
	var buf bytes.Buffer
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	p := newRedisPublisher(client, slog.New(slog.NewJSONHandler(&buf, nil)))
	defer p.Close()

	if got := p.Channel("u1"); got != "tracker:notifications:u1" {
		t.Errorf("Channel = %q, want tracker:notifications:u1", got)
	}
	p.Notify(context.Background(), Message{UserID: "u1", Text: "hi"})
	if !strings.Contains(buf.String(), "publish notification failed") {
		t.Errorf("log = %q, want publish failure logged", buf.String())
	}
}
