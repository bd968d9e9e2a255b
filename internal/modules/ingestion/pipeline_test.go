package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	types "github.com/yungbote/rag-backend/internal/domain"
	"github.com/yungbote/rag-backend/internal/modules/ingestion/coalesce"
	"github.com/yungbote/rag-backend/internal/modules/ingestion/splitter"
	"github.com/yungbote/rag-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/unstructured"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

type fakePartitioner struct {
	elements []unstructured.Element
	err      error
}

func (f fakePartitioner) Partition(ctx context.Context, fileName string, data []byte) ([]unstructured.Element, error) {
	return f.elements, f.err
}

type countingEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (e *countingEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, inputs)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(len(inputs[i])), 1}
	}
	return out, nil
}

type memStore struct {
	mu        sync.Mutex
	points    map[string]vectorstore.Point
	upsertErr error
	deletes   []vectorstore.Filter
}

func newMemStore() *memStore { return &memStore{points: map[string]vectorstore.Point{}} }

func (s *memStore) Upsert(ctx context.Context, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *memStore) Search(ctx context.Context, v []float32, topK int, f vectorstore.Filter) ([]vectorstore.Match, error) {
	return nil, nil
}

func (s *memStore) DeleteByFilter(ctx context.Context, f vectorstore.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, f)
	for id, p := range s.points {
		if f.Matches(p.Metadata) {
			delete(s.points, id)
		}
	}
	return nil
}

type memRegistry struct {
	docs      map[string]*types.Document
	createErr error
}

func newMemRegistry() *memRegistry { return &memRegistry{docs: map[string]*types.Document{}} }

func (r *memRegistry) key(u, d string) string { return u + "/" + d }

func (r *memRegistry) Create(dbc dbctx.Context, doc *types.Document) error {
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.docs[r.key(doc.UserID, doc.DocumentID)]; ok {
		return pkgerrors.ErrConflict
	}
	r.docs[r.key(doc.UserID, doc.DocumentID)] = doc
	return nil
}

func (r *memRegistry) Exists(dbc dbctx.Context, u, d string) (bool, error) {
	_, ok := r.docs[r.key(u, d)]
	return ok, nil
}

func (r *memRegistry) ListByUser(dbc dbctx.Context, u string) ([]*types.Document, error) {
	var out []*types.Document
	for _, d := range r.docs {
		if d.UserID == u {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memRegistry) Delete(dbc dbctx.Context, u, d string) error {
	if _, ok := r.docs[r.key(u, d)]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(r.docs, r.key(u, d))
	return nil
}

func intp(v int) *int { return &v }

func sampleElements() []unstructured.Element {
	return []unstructured.Element{
		{Type: "Title", Text: "Quarterly report", Page: intp(1)},
		{Type: "NarrativeText", Text: strings.Repeat("Revenue grew in every region. ", 6), Page: intp(1)},
		{Type: "PageBreak"},
		{Type: "Table", Text: "region | revenue\nnorth | 10", Page: intp(2)},
		{Type: "NarrativeText", Text: strings.Repeat("Costs were flat year over year. ", 6), Page: intp(2)},
	}
}

type fixture struct {
	pipe     *Pipeline
	embedder *countingEmbedder
	store    *memStore
	registry *memRegistry
}

func newFixture(t *testing.T, elements []unstructured.Element) *fixture {
	t.Helper()
	split, err := splitter.New(splitter.Config{ChunkSize: 120, ChunkOverlap: 0, Separators: []string{"\n\n", "\n", " ", ""}})
	if err != nil {
		t.Fatalf("splitter.New: %v", err)
	}
	f := &fixture{embedder: &countingEmbedder{}, store: newMemStore(), registry: newMemRegistry()}
	cfg := Config{Coalesce: coalesce.IngestConfig(), EmbedBatch: 2, EmbedConcurrency: 2}
	f.pipe, err = NewPipeline(logger.Nop(), NewUnstructuredExtractor(fakePartitioner{elements: elements}), split, f.embedder, f.store, f.registry, cfg, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	f.pipe.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestDocumentIDIsContentHash(t *testing.T) {
	a := DocumentID([]byte("%PDF-1.7 a"))
	b := DocumentID([]byte("%PDF-1.7 a"))
	c := DocumentID([]byte("%PDF-1.7 b"))
	if len(a) != 16 || a != b {
		t.Fatalf("DocumentID: want stable 16 chars got=%q %q", a, b)
	}
	if a == c {
		t.Fatalf("DocumentID: distinct content collided")
	}
}

func TestCategoryMapping(t *testing.T) {
	cases := map[string]string{
		"Title":         coalesce.CategoryTitle,
		"Header":        coalesce.CategoryHeading,
		"ListItem":      coalesce.CategoryText,
		"Table":         coalesce.CategoryTable,
		"CodeSnippet":   coalesce.CategoryCode,
		"Image":         coalesce.CategoryFigure,
		"FigureCaption": coalesce.CategoryCaption,
		"Mystery":       coalesce.CategoryUnknown,
	}
	for in, want := range cases {
		got, keep := categoryFor(in)
		if !keep || got != want {
			t.Fatalf("categoryFor(%s): want=%s got=%s keep=%v", in, want, got, keep)
		}
	}
	if _, keep := categoryFor("PageBreak"); keep {
		t.Fatalf("PageBreak should be dropped")
	}
}

func TestIngestStampsTenantMetadata(t *testing.T) {
	f := newFixture(t, sampleElements())
	data := []byte("%PDF-1.7 report")
	res, err := f.pipe.Ingest(t.Context(), Input{UserID: "alice", FileName: "report.pdf", ContentType: "application/pdf", Data: data})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.DocumentID != DocumentID(data) || res.Chunks == 0 {
		t.Fatalf("result: got=%+v", res)
	}
	if len(f.store.points) != res.Chunks {
		t.Fatalf("points: want=%d got=%d", res.Chunks, len(f.store.points))
	}
	for id, p := range f.store.points {
		if !strings.HasPrefix(id, "alice:"+res.DocumentID+":") {
			t.Fatalf("point id: got=%s", id)
		}
		if p.Metadata[vectorstore.MetaUserID] != "alice" || p.Metadata[vectorstore.MetaDocumentID] != res.DocumentID {
			t.Fatalf("tenant metadata: got=%v", p.Metadata)
		}
		if p.Metadata[vectorstore.MetaFileName] != "report.pdf" || p.Metadata[vectorstore.MetaIngestedAt] != "2024-05-01T12:00:00Z" {
			t.Fatalf("file metadata: got=%v", p.Metadata)
		}
		if len(p.Vector) == 0 {
			t.Fatalf("point %s not embedded", id)
		}
		if _, ok := p.Metadata[MetaElementType]; !ok {
			t.Fatalf("element type lost: %v", p.Metadata)
		}
	}
	for _, b := range f.embedder.batches {
		if len(b) > 2 {
			t.Fatalf("embed batch too large: %d", len(b))
		}
	}
	doc := f.registry.docs["alice/"+res.DocumentID]
	if doc == nil || doc.Chunks != res.Chunks || doc.SizeBytes != int64(len(data)) {
		t.Fatalf("registry: got=%+v", doc)
	}
}

func TestIngestDuplicateIsConflict(t *testing.T) {
	f := newFixture(t, sampleElements())
	in := Input{UserID: "alice", FileName: "a.pdf", Data: []byte("%PDF-1.7 same")}
	if _, err := f.pipe.Ingest(t.Context(), in); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	calls := len(f.embedder.batches)
	if _, err := f.pipe.Ingest(t.Context(), in); !errors.Is(err, pkgerrors.ErrConflict) {
		t.Fatalf("second Ingest: want conflict got=%v", err)
	}
	if len(f.embedder.batches) != calls {
		t.Fatalf("duplicate re-embedded")
	}
	in.UserID = "bob"
	if _, err := f.pipe.Ingest(t.Context(), in); err != nil {
		t.Fatalf("same file for another user: %v", err)
	}
}

func TestIngestRollsBackOnRegistryFailure(t *testing.T) {
	f := newFixture(t, sampleElements())
	f.registry.createErr = errors.New("db down")
	_, err := f.pipe.Ingest(t.Context(), Input{UserID: "alice", FileName: "a.pdf", Data: []byte("%PDF-1.7 x")})
	if err == nil {
		t.Fatalf("Ingest: expected error")
	}
	if len(f.store.points) != 0 {
		t.Fatalf("points left after rollback: %d", len(f.store.points))
	}
	if len(f.store.deletes) != 1 || f.store.deletes[0][vectorstore.MetaUserID] != "alice" {
		t.Fatalf("rollback filter: got=%v", f.store.deletes)
	}
}

func TestIngestEmbedFailureRegistersNothing(t *testing.T) {
	f := newFixture(t, sampleElements())
	f.embedder.err = errors.New("quota")
	if _, err := f.pipe.Ingest(t.Context(), Input{UserID: "alice", FileName: "a.pdf", Data: []byte("%PDF-1.7 y")}); err == nil {
		t.Fatalf("Ingest: expected error")
	}
	if len(f.registry.docs) != 0 || len(f.store.points) != 0 {
		t.Fatalf("partial state: docs=%d points=%d", len(f.registry.docs), len(f.store.points))
	}
}

func TestIngestRequiresUser(t *testing.T) {
	f := newFixture(t, sampleElements())
	_, err := f.pipe.Ingest(t.Context(), Input{FileName: "a.pdf", Data: []byte("x")})
	if !errors.Is(err, pkgerrors.ErrTenantViolation) {
		t.Fatalf("want tenant violation got=%v", err)
	}
}

func TestDeleteIsTenantScoped(t *testing.T) {
	f := newFixture(t, sampleElements())
	data := []byte("%PDF-1.7 shared")
	a, err := f.pipe.Ingest(t.Context(), Input{UserID: "alice", FileName: "a.pdf", Data: data})
	if err != nil {
		t.Fatalf("Ingest alice: %v", err)
	}
	if _, err := f.pipe.Ingest(t.Context(), Input{UserID: "bob", FileName: "a.pdf", Data: data}); err != nil {
		t.Fatalf("Ingest bob: %v", err)
	}
	before := len(f.store.points)

	if err := f.pipe.Delete(t.Context(), "alice", a.DocumentID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(f.store.points) != before/2 {
		t.Fatalf("points after delete: want=%d got=%d", before/2, len(f.store.points))
	}
	for _, p := range f.store.points {
		if p.Metadata[vectorstore.MetaUserID] != "bob" {
			t.Fatalf("alice point survived: %v", p.Metadata)
		}
	}
	if err := f.pipe.Delete(t.Context(), "alice", a.DocumentID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("second Delete: want not found got=%v", err)
	}
	docs, err := f.pipe.List(t.Context(), "bob")
	if err != nil || len(docs) != 1 {
		t.Fatalf("List bob: docs=%d err=%v", len(docs), err)
	}
}
