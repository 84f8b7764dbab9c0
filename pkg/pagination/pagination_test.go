package pagination

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 30, 0, 500, time.FixedZone("BRT", -3*3600)), ID: uuid.New()}

	token := EncodeCursor(original)
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("cursor should be url safe, got %q", token)
	}
	parsed, err := ParseCursor(token)
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if !parsed.CreatedAt.Equal(original.CreatedAt) || parsed.ID != original.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", parsed, original)
	}
	if parsed.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected cursor normalized to UTC, got %v", parsed.CreatedAt.Location())
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if empty, err := ParseCursor("  "); err != nil || empty != nil {
		t.Fatalf("blank cursor should be nil, got %v %v", empty, err)
	}
	for _, token := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-01-01T00:00:00Z"}`)),
	} {
		if _, err := ParseCursor(token); err == nil {
			t.Fatalf("expected error for %q", token)
		}
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 50: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatalf("expected buffered limit 11")
	}
}

func TestTrim(t *testing.T) {
	type row struct {
		id uuid.UUID
		at time.Time
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{
		{uuid.New(), base.Add(3 * time.Minute)},
		{uuid.New(), base.Add(2 * time.Minute)},
		{uuid.New(), base.Add(time.Minute)},
	}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, 2, cursorOf)
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	parsed, err := ParseCursor(next)
	if err != nil || parsed == nil || parsed.ID != rows[1].id {
		t.Fatalf("cursor should point at last kept row, got %q (%v)", next, err)
	}

	page, next = Trim(rows, 5, cursorOf)
	if len(page) != 3 || next != "" {
		t.Fatalf("expected full page without cursor")
	}
}

func TestAfterAddsKeysetClause(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	type order struct {
		ID        uuid.UUID
		CreatedAt time.Time
	}

	stmt := After(conn.Model(&order{}), nil).Find(&[]order{}).Statement
	if strings.Contains(stmt.SQL.String(), "created_at, id") {
		t.Fatalf("nil cursor must not filter: %s", stmt.SQL.String())
	}

	c := &Cursor{CreatedAt: time.Now().UTC(), ID: uuid.New()}
	stmt = After(conn.Model(&order{}), c).Find(&[]order{}).Statement
	if !strings.Contains(stmt.SQL.String(), "(created_at, id) < (") || len(stmt.Vars) != 2 {
		t.Fatalf("unexpected keyset sql %s vars %v", stmt.SQL.String(), stmt.Vars)
	}
}
