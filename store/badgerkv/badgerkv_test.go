package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jacentio/arbor/store"
)

func openTest(t *testing.T) *Adapter {
	t.Helper()
	a, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func put(t *testing.T, a *Adapter, rows ...store.Row) {
	t.Helper()
	left, err := a.BatchPut(context.Background(), rows)
	if err != nil {
		t.Fatalf("BatchPut: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected no unprocessed rows, got %d", len(left))
	}
}

func sortKeys(rows []store.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.SortKey
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOpen_RequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Error("expected error without Dir or InMemory")
	}
}

func TestOpen_OnDisk(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	put(t, a, store.Row{PartitionKey: "USER#1", SortKey: "USER#1", TypeTag: "User"})
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.Get(context.Background(), store.Key{PartitionKey: "USER#1", SortKey: "USER#1"}); err != nil {
		t.Errorf("expected row to survive reopen, got %v", err)
	}
}

func TestGet(t *testing.T) {
	a := openTest(t)
	put(t, a, store.Row{
		PartitionKey: "USER#12345",
		SortKey:      "USER#12345",
		TypeTag:      "User",
		Payload:      map[string]any{"name": "John Doe", "age": 30},
	})

	row, err := a.Get(context.Background(), store.Key{PartitionKey: "USER#12345", SortKey: "USER#12345"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.TypeTag != "User" || row.Payload["name"] != "John Doe" {
		t.Errorf("unexpected row %+v", row)
	}
	if row.Payload["age"] != float64(30) {
		t.Errorf("expected age 30, got %v", row.Payload["age"])
	}

	_, err = a.Get(context.Background(), store.Key{PartitionKey: "USER#0", SortKey: "USER#0"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryByPartitionPrefix_Order(t *testing.T) {
	a := openTest(t)
	put(t, a,
		store.Row{PartitionKey: "PRODUCT#ABC123", SortKey: "PRODUCT#ABC123", TypeTag: "Product"},
		store.Row{PartitionKey: "PRODUCT#ABC123", SortKey: "REVIEW#R2", TypeTag: "ProductReview"},
		store.Row{PartitionKey: "PRODUCT#ABC123", SortKey: "REVIEW#R1", TypeTag: "ProductReview"},
		store.Row{PartitionKey: "PRODUCT#ABC123", SortKey: "REVIEW#R3", TypeTag: "ProductReview"},
		store.Row{PartitionKey: "PRODUCT#ABC123", SortKey: "CATEGORY#laptops", TypeTag: "ProductCategory"},
		store.Row{PartitionKey: "PRODUCT#ABC1234", SortKey: "REVIEW#R9", TypeTag: "ProductReview"},
	)

	tests := []struct {
		name   string
		prefix string
		opts   store.QueryOptions
		want   []string
	}{
		{"whole partition", "", store.QueryOptions{}, []string{"CATEGORY#laptops", "PRODUCT#ABC123", "REVIEW#R1", "REVIEW#R2", "REVIEW#R3"}},
		{"prefix ascending", "REVIEW#", store.QueryOptions{}, []string{"REVIEW#R1", "REVIEW#R2", "REVIEW#R3"}},
		{"prefix descending", "REVIEW#", store.QueryOptions{Descending: true}, []string{"REVIEW#R3", "REVIEW#R2", "REVIEW#R1"}},
		{"descending with limit", "REVIEW#", store.QueryOptions{Descending: true, Limit: 2}, []string{"REVIEW#R3", "REVIEW#R2"}},
		{"ascending with limit", "REVIEW#", store.QueryOptions{Limit: 1}, []string{"REVIEW#R1"}},
		{"no match", "ORDER#", store.QueryOptions{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := a.QueryByPartitionPrefix(context.Background(), "PRODUCT#ABC123", tt.prefix, tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := sortKeys(rows); !equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestQueryBySecondaryPrefix(t *testing.T) {
	a := openTest(t)
	put(t, a,
		store.Row{PartitionKey: "ORDER#O1", SortKey: "PRODUCT#ABC123", TypeTag: "OrderItem", SecondaryPartitionKey: "PRODUCT#ABC123", SecondarySortKey: "ORDER#O1"},
		store.Row{PartitionKey: "ORDER#O2", SortKey: "PRODUCT#ABC123", TypeTag: "OrderItem", SecondaryPartitionKey: "PRODUCT#ABC123", SecondarySortKey: "ORDER#O2"},
		store.Row{PartitionKey: "PRODUCT#ABC123", SortKey: "CATEGORY#laptops", TypeTag: "ProductCategory", SecondaryPartitionKey: "CATEGORY#laptops", SecondarySortKey: "PRODUCT#ABC123"},
		store.Row{PartitionKey: "PRODUCT#ABC123", SortKey: "REVIEW#R1", TypeTag: "ProductReview"},
	)

	rows, err := a.QueryBySecondaryPrefix(context.Background(), "PRODUCT#ABC123", "ORDER#", store.QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].PartitionKey != "ORDER#O1" || rows[1].PartitionKey != "ORDER#O2" {
		t.Errorf("unexpected order %q, %q", rows[0].PartitionKey, rows[1].PartitionKey)
	}

	rows, err = a.QueryBySecondaryPrefix(context.Background(), "PRODUCT#ABC123", "ORDER#", store.QueryOptions{Descending: true, Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].PartitionKey != "ORDER#O2" {
		t.Errorf("expected ORDER#O2 only, got %+v", rows)
	}

	rows, err = a.QueryBySecondaryPrefix(context.Background(), "REVIEW#R1", "", store.QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected unprojected rows to stay out of the index, got %d", len(rows))
	}
}

func TestBatchPut_ReplacesProjection(t *testing.T) {
	a := openTest(t)
	put(t, a, store.Row{PartitionKey: "CATEGORY#computers", SortKey: "CATEGORY#laptops", TypeTag: "CategoryChild", SecondaryPartitionKey: "CATEGORY#laptops", SecondarySortKey: "CHILD_OF#computers"})
	put(t, a, store.Row{PartitionKey: "CATEGORY#computers", SortKey: "CATEGORY#laptops", TypeTag: "CategoryChild"})

	rows, err := a.QueryBySecondaryPrefix(context.Background(), "CATEGORY#laptops", "", store.QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected overwritten row to drop its index entry, got %d rows", len(rows))
	}
}

func TestBatchDelete(t *testing.T) {
	a := openTest(t)
	rel := store.Row{PartitionKey: "ORDER#O1", SortKey: "USER#U1", TypeTag: "OrderCustomer", SecondaryPartitionKey: "USER#U1", SecondarySortKey: "ORDER#O1"}
	put(t, a, store.Row{PartitionKey: "ORDER#O1", SortKey: "ORDER#O1", TypeTag: "Order"}, rel)

	left, err := a.BatchDelete(context.Background(), []store.Key{
		rel.Key(),
		{PartitionKey: "ORDER#missing", SortKey: "ORDER#missing"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("expected no unprocessed keys, got %v", left)
	}

	if _, err := a.Get(context.Background(), rel.Key()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected deleted row to be gone, got %v", err)
	}
	rows, err := a.QueryBySecondaryPrefix(context.Background(), "USER#U1", "ORDER#", store.QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected index entry to be removed, got %d", len(rows))
	}
	if _, err := a.Get(context.Background(), store.Key{PartitionKey: "ORDER#O1", SortKey: "ORDER#O1"}); err != nil {
		t.Errorf("expected entity row to remain, got %v", err)
	}
}

func TestBatch_Limits(t *testing.T) {
	a := openTest(t)

	rows := make([]store.Row, store.MaxBatchSize+1)
	for i := range rows {
		rows[i] = store.Row{PartitionKey: "P#1", SortKey: fmt.Sprintf("S#%02d", i)}
	}
	if _, err := a.BatchPut(context.Background(), rows); !errors.Is(err, store.ErrBatchTooLarge) {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}
	if _, err := a.BatchDelete(context.Background(), make([]store.Key, store.MaxBatchSize+1)); !errors.Is(err, store.ErrBatchTooLarge) {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}
	if _, err := a.BatchPut(context.Background(), []store.Row{{PartitionKey: "P#1", SortKey: "S\x00#1"}}); !errors.Is(err, store.ErrInvalidRow) {
		t.Errorf("expected ErrInvalidRow for NUL in key, got %v", err)
	}

	// A rejected batch writes nothing.
	got, err := a.QueryByPartitionPrefix(context.Background(), "P#1", "", store.QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty partition, got %d rows", len(got))
	}
}

func TestQuery_CancelledContext(t *testing.T) {
	a := openTest(t)
	put(t, a, store.Row{PartitionKey: "USER#1", SortKey: "ORDER#1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.QueryByPartitionPrefix(ctx, "USER#1", "", store.QueryOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := a.Get(ctx, store.Key{PartitionKey: "USER#1", SortKey: "ORDER#1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
