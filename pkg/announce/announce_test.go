package announce

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	repo, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "records.db"), quietLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return repo
}

func TestRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, title := range []string{"Block party", "Mahjong night", "CNY lunch"} {
		if _, err := repo.Create(ctx, title, "Details for "+title); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List(2) returned %d items, want 2", len(got))
	}
	if got[0].Title != "CNY lunch" || got[1].Title != "Mahjong night" {
		t.Errorf("List() = %v, want newest first", got)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be populated")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn", quietLogger()); err == nil {
		t.Error("Open(mysql) should fail")
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{10, 10},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

type upperTranslator struct {
	calls int
}

func (u *upperTranslator) TranslateFieldsBatch(ctx context.Context, rows []map[string]any, lang string) []map[string]any {
	u.calls++
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = make(map[string]any, len(row))
		for k, v := range row {
			out[i][k] = strings.ToUpper(v.(string))
		}
	}
	return out
}

func TestLocalize(t *testing.T) {
	items := []Announcement{
		{ID: 1, Title: "Block party", Message: "Bring food"},
		{ID: 2, Title: "Mahjong", Message: ""},
	}

	tr := &upperTranslator{}
	if got := Localize(context.Background(), tr, items, "en"); got[0].Title != "Block party" || tr.calls != 0 {
		t.Errorf("Localize(en) = %v, calls = %d; want untouched and no calls", got, tr.calls)
	}

	got := Localize(context.Background(), tr, items, "zh")
	if tr.calls != 1 {
		t.Errorf("translator calls = %d, want 1", tr.calls)
	}
	if got[0].Title != "BLOCK PARTY" || got[0].Message != "BRING FOOD" || got[1].ID != 2 {
		t.Errorf("Localize(zh) = %v", got)
	}
	if items[0].Title != "Block party" {
		t.Error("Localize() must not modify its input")
	}
}
