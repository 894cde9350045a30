package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

// Memory is an in-process store. Scans return records in insertion order.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*model.KnowledgeRecord
	order   []string
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*model.KnowledgeRecord),
	}
}

func (m *Memory) FindByKey(ctx context.Context, fileName string) (*model.KnowledgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[fileName]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (m *Memory) Upsert(ctx context.Context, record *model.KnowledgeRecord) (*model.KnowledgeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var existingID model.RecordID
	if record != nil {
		if existing, ok := m.records[record.FileName]; ok {
			existingID = existing.ID
		}
	}

	r, err := prepareUpsert(record, existingID)
	if err != nil {
		return nil, err
	}

	if existingID == "" {
		m.order = append(m.order, r.FileName)
	}
	m.records[r.FileName] = r
	return r.Clone(), nil
}

func (m *Memory) ScanWithEmbeddings(ctx context.Context) ([]*model.KnowledgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.KnowledgeRecord, 0, len(m.order))
	for _, name := range m.order {
		if r := m.records[name]; r.HasEmbedding() {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) Delete(ctx context.Context, fileName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[fileName]; !ok {
		return notFound(fileName)
	}
	delete(m.records, fileName)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == fileName })
	return nil
}

func (m *Memory) Close() error { return nil }
