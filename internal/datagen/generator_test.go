package datagen

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	dir := t.TempDir()
	g, err := NewGenerator(filepath.Join(dir, "generate"), filepath.Join(dir, "fetch"))
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}
	return g
}

func TestGenerateAndLoad(t *testing.T) {
	g := newTestGenerator(t)

	fileID, err := g.Generate(Params{Length: 50, BaseMean: 100, Trend: TrendUp, Seed: 42, HasSeed: true})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(fileID) != 8 {
		t.Errorf("file id length = %d, want 8", len(fileID))
	}

	meta, prices, err := g.Load(fileID)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(prices) != 50 {
		t.Errorf("len(prices) = %d, want 50", len(prices))
	}
	for i, p := range prices {
		if p <= 0 {
			t.Errorf("price[%d] = %f, want positive", i, p)
		}
	}
	if meta["file_id"] != fileID {
		t.Errorf("metadata file_id = %v, want %s", meta["file_id"], fileID)
	}
	if meta["trend"] != "up" {
		t.Errorf("metadata trend = %v, want up", meta["trend"])
	}
}

func TestGenerateSeedDeterminism(t *testing.T) {
	g := newTestGenerator(t)

	idA, err := g.Generate(Params{Length: 30, Seed: 7, HasSeed: true})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	idB, err := g.Generate(Params{Length: 30, Seed: 7, HasSeed: true})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	_, pricesA, err := g.Load(idA)
	if err != nil {
		t.Fatalf("Load(%s) returned error: %v", idA, err)
	}
	_, pricesB, err := g.Load(idB)
	if err != nil {
		t.Fatalf("Load(%s) returned error: %v", idB, err)
	}

	if len(pricesA) != len(pricesB) {
		t.Fatalf("lengths differ: %d vs %d", len(pricesA), len(pricesB))
	}
	for i := range pricesA {
		if pricesA[i] != pricesB[i] {
			t.Fatalf("price[%d] differs with same seed: %f vs %f", i, pricesA[i], pricesB[i])
		}
	}
}

func TestLoadFetchedFormat(t *testing.T) {
	g := newTestGenerator(t)

	// Fetched files carry timestamps and session labels in the first two
	// columns.
	fetchDir := g.fetchDir
	if err := os.MkdirAll(fetchDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := `{"symbol":"AAPL.US","task_id":"abc12345"}
2024-06-03 10:00:00,盘中,101.5
2024-06-03 10:00:05,盘中,101.7
2024-06-03 10:00:10,盘中,101.2
`
	if err := os.WriteFile(filepath.Join(fetchDir, "abc12345.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	meta, prices, err := g.Load("abc12345")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if meta["symbol"] != "AAPL.US" {
		t.Errorf("metadata symbol = %v, want AAPL.US", meta["symbol"])
	}
	want := []float64{101.5, 101.7, 101.2}
	if len(prices) != len(want) {
		t.Fatalf("len(prices) = %d, want %d", len(prices), len(want))
	}
	for i := range want {
		if prices[i] != want[i] {
			t.Errorf("prices[%d] = %f, want %f", i, prices[i], want[i])
		}
	}

	points, err := g.LoadPoints("abc12345")
	if err != nil {
		t.Fatalf("LoadPoints returned error: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("len(points) = %d, want 3", len(points))
	}
	if points[0].Session != "盘中" {
		t.Errorf("points[0].Session = %q, want 盘中", points[0].Session)
	}
	if points[0].Timestamp.IsZero() {
		t.Error("points[0].Timestamp not parsed")
	}
}

func TestLoadMissingFile(t *testing.T) {
	g := newTestGenerator(t)
	if _, _, err := g.Load("deadbeef"); err == nil {
		t.Error("Load of missing file returned nil error")
	}
}

func TestListAndDelete(t *testing.T) {
	g := newTestGenerator(t)

	id, err := g.Generate(Params{Length: 10, Seed: 1, HasSeed: true})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	files := g.List()
	if len(files) != 1 {
		t.Fatalf("List returned %d files, want 1", len(files))
	}
	if files[0]["file_id"] != id {
		t.Errorf("listed file_id = %v, want %s", files[0]["file_id"], id)
	}

	if err := g.Delete(id); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if files := g.List(); len(files) != 0 {
		t.Errorf("List after delete returned %d files, want 0", len(files))
	}
	if err := g.Delete(id); err == nil {
		t.Error("Delete of missing file returned nil error")
	}
}
