package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/katakuxiko/medchat/internal/config"
	"github.com/katakuxiko/medchat/internal/model"
)

func testSpec(name string, dim int) model.IndexSpec {
	return model.IndexSpec{Name: name, Dimension: dim, Metric: model.MetricCosine, Cloud: "aws", Region: "us-east-1"}
}

func unit(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

// exerciseIndex runs the behaviour every VectorIndex must share.
func exerciseIndex(t *testing.T, idx VectorIndex, name string) {
	ctx := context.Background()

	if _, err := idx.Query(ctx, unit(4, 0), 3); !errors.Is(err, ErrNoIndex) {
		t.Fatalf("query before EnsureIndex: err = %v, want ErrNoIndex", err)
	}

	spec := testSpec(name, 4)
	for i := 0; i < 2; i++ {
		if err := idx.EnsureIndex(ctx, spec); err != nil {
			t.Fatalf("EnsureIndex #%d: %v", i+1, err)
		}
	}
	specs, err := idx.Indexes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rows := 0
	for _, s := range specs {
		if s.Name == name {
			rows++
			if s != spec {
				t.Fatalf("registry row = %+v, want %+v", s, spec)
			}
		}
	}
	if rows != 1 {
		t.Fatalf("registry has %d rows for %s, want 1", rows, name)
	}

	if err := idx.EnsureIndex(ctx, testSpec(name, 8)); !errors.Is(err, ErrIndexMismatch) {
		t.Fatalf("EnsureIndex with other dimension: err = %v, want ErrIndexMismatch", err)
	}
	// the mismatch must not switch the selected index
	if err := idx.EnsureIndex(ctx, spec); err != nil {
		t.Fatal(err)
	}

	entries := []model.Entry{
		{ID: "a", Vector: []float32{1, 0, 0, 0}, Text: "Aspirin reduces fever.", Metadata: map[string]any{"source": "data/a.pdf", "page": 0}},
		{ID: "b", Vector: []float32{0.8, 0.6, 0, 0}, Text: "Paracetamol also lowers temperature.", Metadata: map[string]any{"source": "data/b.pdf", "page": 2}},
		{ID: "c", Vector: []float32{0, 0, 1, 0}, Text: "Bandages cover wounds."},
		{ID: "d", Vector: []float32{0, 0, 0, 1}, Text: "Rest helps recovery."},
	}
	if err := idx.Upsert(ctx, entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 4 {
		t.Fatalf("Count = %d, want 4", n)
	}

	matches, err := idx.Query(ctx, []float32{1, 0.1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	if matches[0].ID != "a" || matches[1].ID != "b" {
		t.Fatalf("unexpected ranking: %s, %s", matches[0].ID, matches[1].ID)
	}
	if matches[0].Source() != "data/a.pdf" || matches[0].Text != "Aspirin reduces fever." {
		t.Fatalf("match lost text or metadata: %+v", matches[0])
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("scores not descending: %v", matches)
		}
	}
	want := 1 / math.Sqrt(1.01)
	if math.Abs(matches[0].Score-want) > 1e-4 {
		t.Fatalf("top score = %f, want %f", matches[0].Score, want)
	}

	// replacing an id keeps the count
	entries[0].Text = "Aspirin reduces fever and pain."
	if err := idx.Upsert(ctx, entries[:1]); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.Count(ctx); n != 4 {
		t.Fatalf("Count after re-upsert = %d, want 4", n)
	}
	top, _ := idx.Query(ctx, unit(4, 0), 1)
	if len(top) != 1 || top[0].Text != "Aspirin reduces fever and pain." {
		t.Fatalf("upsert did not replace text: %+v", top)
	}

	bad := []model.Entry{{ID: "e", Vector: []float32{1, 2}}}
	if err := idx.Upsert(ctx, bad); !errors.Is(err, ErrIndexMismatch) {
		t.Fatalf("short vector: err = %v, want ErrIndexMismatch", err)
	}
	if _, err := idx.Query(ctx, []float32{1}, 3); !errors.Is(err, ErrIndexMismatch) {
		t.Fatalf("short query: err = %v, want ErrIndexMismatch", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseIndex(t, s, "medical-chatbot")
}

func TestSQLiteStore_IndexesAreSeparate(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.EnsureIndex(ctx, testSpec("one", 2)); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, []model.Entry{{ID: "x", Vector: []float32{1, 0}, Text: "x"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureIndex(ctx, testSpec("two", 2)); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Fatalf("index two sees %d entries of index one", n)
	}
}

func TestSQLiteStore_File(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/index.db"
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureIndex(ctx, testSpec("medical-chatbot", 2)); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, []model.Entry{{ID: "x", Vector: []float32{1, 0}, Text: "kept"}}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.EnsureIndex(ctx, testSpec("medical-chatbot", 2)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Query(ctx, []float32{1, 0}, 3)
	if err != nil || len(got) != 1 || got[0].Text != "kept" {
		t.Fatalf("reopened store: %+v, %v", got, err)
	}
}

func TestPgStore(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	s, err := NewPgStore(dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	name := fmt.Sprintf("medchat-test-%d", os.Getpid())
	t.Cleanup(func() {
		ctx := context.Background()
		s.db.ExecContext(ctx, `DROP TABLE IF EXISTS "`+name+`"`)
		s.db.ExecContext(ctx, `DELETE FROM vector_indexes WHERE name = $1`, name)
	})
	exerciseIndex(t, s, name)
	if err := s.Analyze(context.Background()); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
}

func TestValidateSpec(t *testing.T) {
	cases := []model.IndexSpec{
		{Name: "Medical_Chatbot", Dimension: 384, Metric: "cosine"},
		{Name: "medical-chatbot", Dimension: 0, Metric: "cosine"},
		{Name: "medical-chatbot", Dimension: 384, Metric: "dotproduct"},
	}
	for _, c := range cases {
		if err := validateSpec(c); err == nil {
			t.Errorf("validateSpec(%+v) = nil, want error", c)
		}
	}
	if err := validateSpec(testSpec("medical-chatbot", 384)); err != nil {
		t.Fatal(err)
	}
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, 1.5, -2.25, float32(math.Pi)}
	got, err := DecodeVector(EncodeVector(v))
	if err != nil {
		t.Fatal(err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("component %d: %v != %v", i, got[i], v[i])
		}
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}

func TestOpen(t *testing.T) {
	cfg := config.Default().Index
	cfg.Driver, cfg.DSN = "sqlite", ":memory:"
	idx, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	idx.Close()
	cfg.Driver = "pinecone"
	if _, err := Open(cfg); err == nil {
		t.Fatal("expected unknown driver error")
	}
}
