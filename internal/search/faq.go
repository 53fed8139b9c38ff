package search

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/mapping"

	"github.com/docpilot/docpilot/internal/store"
)

// faqDoc is the indexed shape of a FAQ entry.
type faqDoc struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// FAQIndex is an in-memory bleve index over FAQ entries, rebuilt from the
// store at startup and kept in sync by the admin CRUD handlers.
type FAQIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

func NewFAQIndex() (*FAQIndex, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create faq index: %w", err)
	}
	return &FAQIndex{index: idx}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	m := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	doc.AddFieldMappingsAt("question", text)
	doc.AddFieldMappingsAt("answer", text)
	doc.AddFieldMappingsAt("category", bleve.NewTextFieldMapping())
	m.DefaultMapping = doc
	return m
}

// Rebuild replaces the index contents with the given FAQs.
func (f *FAQIndex) Rebuild(faqs []store.FAQ) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.index.NewBatch()
	for _, faq := range faqs {
		if err := batch.Index(faq.ID, faqDoc{Question: faq.Question, Answer: faq.Answer, Category: faq.Category}); err != nil {
			return err
		}
	}
	return f.index.Batch(batch)
}

// Upsert indexes one FAQ, replacing any previous version.
func (f *FAQIndex) Upsert(faq store.FAQ) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Index(faq.ID, faqDoc{Question: faq.Question, Answer: faq.Answer, Category: faq.Category})
}

// Delete removes one FAQ from the index.
func (f *FAQIndex) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Delete(id)
}

// Search returns FAQ ids ranked by relevance for a free-text query.
func (f *FAQIndex) Search(query string, limit int) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := f.index.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
