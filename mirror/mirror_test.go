package mirror

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/stockwatch/models"
	"github.com/aluiziolira/stockwatch/state"
	"github.com/xuri/excelize/v2"
)

func TestBuildRows(t *testing.T) {
	next := state.New()
	next.Seen["a"] = "Alpha"
	next.Seen["b"] = "Beta"
	next.Seen["c"] = "Gamma"
	next.Available["b"] = "Beta"
	next.Available["a"] = "Alpha"

	obs := models.RunObservation{
		"a": {Name: "Alpha", URL: "https://shop.test/a", Price: "10 kr", Availability: models.InStock, SiteName: "Shop"},
		"c": {Name: "Gamma", URL: "https://shop.test/c", Availability: models.SoldOut, SiteName: "Shop"},
	}
	transitions := []models.Transition{{Kind: models.BackInStock, Identity: "a", Name: "Alpha"}}

	rows := BuildRows(next, obs, transitions)
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}
	want := Row{Hash: "a", ProductName: "Alpha", Price: "10 kr", URL: "https://shop.test/a", Store: "Shop", Status: "Back in stock"}
	if rows[0] != want {
		t.Fatalf("row a = %+v, want %+v", rows[0], want)
	}
	if rows[1] != (Row{Hash: "b", ProductName: "Beta"}) {
		t.Fatalf("row b = %+v, want name only", rows[1])
	}
}

func sampleRows() []Row {
	return []Row{
		{Hash: "a", ProductName: "Alpha", Price: "10 kr", URL: "https://shop.test/a", Store: "Shop", Status: "In stock"},
		{Hash: "b", ProductName: "Beta", Price: "20 kr", URL: "https://shop.test/b", Store: "Shop", Status: "Pre-orderable"},
	}
}

func TestCSVSinkRewritesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "mirror.csv")
	sink := CSVSink{Path: path}

	if err := sink.Sync(context.Background(), sampleRows()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := sink.Sync(context.Background(), sampleRows()[:1]); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want header plus one row", len(records))
	}
	if records[0][0] != "hash" || records[0][1] != "product_name" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "a" || records[1][5] != "In stock" {
		t.Fatalf("unexpected row: %v", records[1])
	}
}

func TestJSONSinkWritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.jsonl")
	if err := (JSONSink{Path: path}).Sync(context.Background(), sampleRows()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []Row
	for scanner.Scan() {
		var r Row
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		lines = append(lines, r)
	}
	if len(lines) != 2 || lines[1].Status != "Pre-orderable" {
		t.Fatalf("lines = %+v", lines)
	}
}

func readSheet(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(DefaultSheet)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	return rows
}

func TestXLSXSinkUpsertsAndDeletes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.xlsx")
	sink := NewXLSXSink(path, "")

	if err := sink.Sync(context.Background(), sampleRows()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	rows := readSheet(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want header plus two", len(rows))
	}

	// a leaves, b loses its details but keeps them in the sheet, c arrives
	second := []Row{
		{Hash: "b", ProductName: "Beta", Status: "In stock"},
		{Hash: "c", ProductName: "Gamma", Price: "30 kr", URL: "https://shop.test/c", Store: "Other", Status: "New product"},
	}
	if err := sink.Sync(context.Background(), second); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	rows = readSheet(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want header plus two: %v", len(rows), rows)
	}
	if rows[0][0] != "hash" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "b" || rows[1][2] != "20 kr" || rows[1][5] != "In stock" {
		t.Fatalf("row b = %v, want kept price and new status", rows[1])
	}
	if rows[2][0] != "c" || rows[2][4] != "Other" {
		t.Fatalf("row c = %v", rows[2])
	}

	if err := sink.Sync(context.Background(), nil); err != nil {
		t.Fatalf("empty sync: %v", err)
	}
	if rows = readSheet(t, path); len(rows) != 1 {
		t.Fatalf("rows=%d, want only the header", len(rows))
	}
}

func TestXLSXSinkAddsSheetToExistingWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "keep me"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save seed: %v", err)
	}
	f.Close()

	if err := NewXLSXSink(path, DefaultSheet).Sync(context.Background(), sampleRows()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer wb.Close()
	if v, _ := wb.GetCellValue("Sheet1", "A1"); v != "keep me" {
		t.Fatalf("existing sheet changed: %q", v)
	}
	if rows, _ := wb.GetRows(DefaultSheet); len(rows) != 3 {
		t.Fatalf("mirror rows=%d, want 3", len(rows))
	}
}

type failingSink struct{}

func (failingSink) Sync(context.Context, []Row) error { return errors.New("disk full") }

func TestMultiSinkJoinsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.csv")
	m := NewMultiSink(failingSink{}, nil, CSVSink{Path: path})

	err := m.Sync(context.Background(), sampleRows())
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("later sink did not run: %v", statErr)
	}
}

func TestNewSink(t *testing.T) {
	dir := t.TempDir()

	sink, err := New("", "")
	if err != nil || sink != nil {
		t.Fatalf("disabled mirror = %v, %v", sink, err)
	}
	if _, err := New("parquet", "x"); err == nil {
		t.Fatalf("expected error for unknown format")
	}

	sink, err = New("dual", filepath.Join(dir, "mirror.out"))
	if err != nil {
		t.Fatalf("dual: %v", err)
	}
	if err := sink.Sync(context.Background(), sampleRows()); err != nil {
		t.Fatalf("dual sync: %v", err)
	}
	for _, name := range []string{"mirror.csv", "mirror.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
}

func TestXLSXSinkRemovesDuplicateHashes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dupes.xlsx")
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", DefaultSheet); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}
	seed := [][]interface{}{
		{"hash", "product_name", "price", "url", "store", "status"},
		{"a", "Alpha", "10 kr", "https://shop.test/a", "Shop", "In stock"},
		{"a", "Alpha copy", "11 kr", "https://shop.test/a", "Shop", "In stock"},
		{"b", "Beta", "20 kr", "https://shop.test/b", "Shop", "Pre-orderable"},
		{"a", "Alpha again", "12 kr", "https://shop.test/a", "Shop", "In stock"},
	}
	for i, row := range seed {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		row := row
		if err := f.SetSheetRow(DefaultSheet, cellName, &row); err != nil {
			t.Fatalf("seed row %d: %v", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save seed: %v", err)
	}
	f.Close()

	if err := NewXLSXSink(path, "").Sync(context.Background(), sampleRows()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	rows := readSheet(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want header plus one row per hash: %v", len(rows), rows)
	}
	if rows[1][0] != "a" || rows[1][1] != "Alpha" || rows[2][0] != "b" {
		t.Fatalf("rows = %v", rows)
	}
}
