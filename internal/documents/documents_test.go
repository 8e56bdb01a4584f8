package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/embeddings"
	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/store/memory"
	"github.com/Noctocode/worken-ai/internal/store/storetest"
	"github.com/Noctocode/worken-ai/internal/vectorstore"
)

const testDim = 16

// hashEmbedder maps each word to a bucket, so identical texts get identical
// vectors and texts sharing words are closer.
type hashEmbedder struct {
	err error
}

func (e hashEmbedder) embed(text string) []float32 {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,")))
		v[h.Sum32()%testDim]++
	}
	embeddings.Normalize(v)
	return v
}

func (e hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.embed(text), nil
}

type recordingTitler struct {
	mu    sync.Mutex
	keys  []string
	title string
}

func (r *recordingTitler) Title(_ context.Context, apiKey, _ string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, apiKey)
	return r.title
}

type staticKeys string

func (k staticKeys) ForProject(context.Context, string, string) string { return string(k) }

type failingIndex struct {
	vectorstore.Store
	upsertErr error
	deleteErr error
}

func (f failingIndex) Upsert(ctx context.Context, docs []vectorstore.Document) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.Store.Upsert(ctx, docs)
}

func (f failingIndex) DeleteGroup(ctx context.Context, projectID, groupID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.DeleteGroup(ctx, projectID, groupID)
}

type fixture struct {
	store   *memory.Store
	index   vectorstore.Store
	titler  *recordingTitler
	svc     *Service
	owner   access.Principal
	project *store.Project
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	s := memory.New()
	index, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{VectorSize: testDim}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	titler := &recordingTitler{title: "Solar Panel Maintenance"}
	cfg := Config{
		Store:    s,
		Index:    index,
		Embedder: hashEmbedder{},
		Keys:     staticKeys("sk-or-project"),
		Titler:   titler,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	u := storetest.SeedUser(t, s, "ada", true)
	return &fixture{
		store:   s,
		index:   cfg.Index,
		titler:  titler,
		svc:     NewService(cfg),
		owner:   access.Principal{UserID: u.ID, Email: u.Email, IsPaid: true},
		project: storetest.SeedProject(t, s, u, nil),
	}
}

func paragraph(topic string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "The %s needs regular inspection and cleaning step %d. ", topic, i)
	}
	return strings.TrimSpace(b.String())
}

func (f *fixture) rowCount(t *testing.T) int {
	t.Helper()
	docs, err := f.store.Documents().ListByProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	return len(docs)
}

func TestCreateFromText_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	text := paragraph("solar panel", 2) + "\n\n" + paragraph("inverter cabinet", 2)
	chunks, err := f.svc.CreateFromText(ctx, f.owner, f.project.ID, text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, chunks[0].GroupID, chunks[1].GroupID)
	for _, c := range chunks {
		assert.Equal(t, "Solar Panel Maintenance", c.Title)
		assert.Equal(t, f.project.ID, c.ProjectID)
	}
	assert.Equal(t, []string{"sk-or-project"}, f.titler.keys)

	listed, err := f.svc.List(ctx, f.owner, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	groups, err := f.svc.ListGroups(ctx, f.owner, f.project.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].ChunkCount)
	assert.Equal(t, chunks[0].GroupID, groups[0].GroupID)

	results, err := f.svc.Search(ctx, f.project.ID, chunks[1].Content, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, chunks[1].ID, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-4)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
}

func TestCreateFromText_ShortTextIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	chunks, err := f.svc.CreateFromText(context.Background(), f.owner, f.project.ID, "too short")
	require.NoError(t, err)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)
	assert.Zero(t, f.rowCount(t))
	assert.Empty(t, f.titler.keys)
}

func TestCreateFromText_EmbeddingFailureWritesNothing(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Embedder = hashEmbedder{err: errors.New("onnx session closed")} })

	_, err := f.svc.CreateFromText(context.Background(), f.owner, f.project.ID, paragraph("battery", 3))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Zero(t, f.rowCount(t))
}

func TestCreateFromText_IndexFailureRemovesGroup(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Index = failingIndex{Store: c.Index, upsertErr: errors.New("qdrant unavailable")}
	})

	_, err := f.svc.CreateFromText(context.Background(), f.owner, f.project.ID, paragraph("battery", 3))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Zero(t, f.rowCount(t))
}

func TestAccessIsMaskedAsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	chunks, err := f.svc.CreateFromText(ctx, f.owner, f.project.ID, paragraph("wind turbine", 2))
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	eve := storetest.SeedUser(t, f.store, "eve", true)
	stranger := access.Principal{UserID: eve.ID, Email: eve.Email}

	_, err = f.svc.List(ctx, stranger, f.project.ID)
	assert.Equal(t, "Project "+f.project.ID+" not found", apperr.MessageOf(err))

	_, err = f.svc.SearchForPrincipal(ctx, stranger, f.project.ID, "turbine", 5)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.Delete(ctx, stranger, chunks[0].ID)
	assert.Equal(t, "Document "+chunks[0].ID+" not found", apperr.MessageOf(err))
	assert.Equal(t, 1, f.rowCount(t))

	_, err = f.svc.Delete(ctx, f.owner, "missing")
	assert.Equal(t, "Document missing not found", apperr.MessageOf(err))
}

func TestDeleteGroup_RemovesOnlyThatGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first, err := f.svc.CreateFromText(ctx, f.owner, f.project.ID, paragraph("heat pump", 2))
	require.NoError(t, err)
	second, err := f.svc.CreateFromText(ctx, f.owner, f.project.ID, paragraph("water tank", 2))
	require.NoError(t, err)

	deleted, err := f.svc.DeleteGroup(ctx, f.owner, f.project.ID, first[0].GroupID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, first[0].ID, deleted[0].ID)

	results, err := f.svc.Search(ctx, f.project.ID, first[0].Content, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, second[0].ID, results[0].ID)

	groups, err := f.svc.ListGroups(ctx, f.owner, f.project.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, second[0].GroupID, groups[0].GroupID)
}

func TestDeleteGroup_IndexFailureKeepsRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	chunks, err := f.svc.CreateFromText(ctx, f.owner, f.project.ID, paragraph("heat pump", 2))
	require.NoError(t, err)

	f.svc.index = failingIndex{Store: f.index, deleteErr: errors.New("index offline")}
	_, err = f.svc.DeleteGroup(ctx, f.owner, f.project.ID, chunks[0].GroupID)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, 1, f.rowCount(t))
}

func TestDelete_SingleChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	text := paragraph("roof", 2) + "\n\n" + paragraph("gutter", 2)
	chunks, err := f.svc.CreateFromText(ctx, f.owner, f.project.ID, text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	deleted, err := f.svc.Delete(ctx, f.owner, chunks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, chunks[0].ID, deleted.ID)
	assert.Equal(t, 1, f.rowCount(t))

	results, err := f.svc.Search(ctx, f.project.ID, chunks[0].Content, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[1].ID, results[0].ID)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	empty, err := f.svc.Search(ctx, f.project.ID, "anything at all", 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	paragraphs := make([]string, 7)
	for i := range paragraphs {
		paragraphs[i] = paragraph(fmt.Sprintf("component %d", i), 2)
	}
	_, err = f.svc.CreateFromText(ctx, f.owner, f.project.ID, strings.Join(paragraphs, "\n\n"))
	require.NoError(t, err)

	results, err := f.svc.Search(ctx, f.project.ID, "component inspection", 0)
	require.NoError(t, err)
	assert.Len(t, results, vectorstore.DefaultK)

	again, err := f.svc.Search(ctx, f.project.ID, "component inspection", 0)
	require.NoError(t, err)
	assert.Equal(t, results, again)

	_, err = f.svc.Search(ctx, f.project.ID, "   ", 5)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func docxFile(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// blankPDF builds a valid one-page PDF whose page has an empty content stream.
func blankPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> /Contents 4 0 R >>",
		"<< /Length 0 >>\nstream\n\nendstream",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestCreateFromFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.CreateFromFile(ctx, f.owner, f.project.ID, []byte("hello"), "text/plain", "notes.txt")
	assert.Equal(t, msgUnsupportedType, apperr.MessageOf(err))

	_, err = f.svc.CreateFromFile(ctx, f.owner, f.project.ID, docxFile(t, "", "tiny"), MIMEDOCX, "blank.docx")
	assert.Equal(t, msgNothingExtracted, apperr.MessageOf(err))
	assert.Zero(t, f.rowCount(t))

	_, err = f.svc.CreateFromFile(ctx, f.owner, f.project.ID, blankPDF(), MIMEPDF, "scan.pdf")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	assert.Equal(t, msgNothingExtracted, apperr.MessageOf(err))
	assert.Zero(t, f.rowCount(t))

	_, err = f.svc.CreateFromFile(ctx, f.owner, f.project.ID, []byte("%PDF-1.4 truncated"), MIMEPDF, "broken.pdf")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	assert.Zero(t, f.rowCount(t))

	file := docxFile(t, paragraph("generator", 2), paragraph("transformer", 2))
	chunks, err := f.svc.CreateFromFile(ctx, f.owner, f.project.ID, file, MIMEDOCX, "site.handbook.docx")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "site.handbook", chunks[0].Title)
	assert.Empty(t, f.titler.keys)
}
