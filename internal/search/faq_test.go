package search

import (
	"testing"

	"github.com/docpilot/docpilot/internal/store"
)

func seedIndex(t *testing.T) *FAQIndex {
	t.Helper()
	idx, err := NewFAQIndex()
	if err != nil {
		t.Fatalf("NewFAQIndex: %v", err)
	}
	faqs := []store.FAQ{
		{ID: "f-1", Question: "How do I reset my password?", Answer: "Use the forgot password link on the login page.", Category: "account"},
		{ID: "f-2", Question: "Which file types are supported?", Answer: "PDF and common image formats can be uploaded.", Category: "documents"},
		{ID: "f-3", Question: "Why did my extraction fail?", Answer: "Scanned pages with heavy noise sometimes fail, retry from the dashboard.", Category: "documents"},
	}
	if err := idx.Rebuild(faqs); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return idx
}

func TestFAQSearchRanksMatches(t *testing.T) {
	idx := seedIndex(t)

	ids, err := idx.Search("password", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != "f-1" {
		t.Fatalf("expected [f-1], got %v", ids)
	}

	ids, err = idx.Search("extraction failed", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) == 0 || ids[0] != "f-3" {
		t.Fatalf("expected f-3 ranked first, got %v", ids)
	}
}

func TestFAQSearchNoHits(t *testing.T) {
	idx := seedIndex(t)
	ids, err := idx.Search("kubernetes", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no hits, got %v", ids)
	}
}

func TestFAQUpsertAndDelete(t *testing.T) {
	idx := seedIndex(t)

	if err := idx.Upsert(store.FAQ{ID: "f-4", Question: "Is there an invoice export?", Answer: "Yes, monthly invoices land in billing.", Category: "billing"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	ids, err := idx.Search("invoice", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != "f-4" {
		t.Fatalf("expected upserted entry, got %v", ids)
	}

	if err := idx.Delete("f-4"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ids, err = idx.Search("invoice", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected deleted entry gone, got %v", ids)
	}
}
