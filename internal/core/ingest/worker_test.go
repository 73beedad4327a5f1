// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowreader/internal/core/book"
)

func buildEPUB(t *testing.T) []byte {
	t.Helper()

	files := map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf"/></rootfiles>
</container>`,
		"OEBPS/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Pipeline Book</dc:title>
    <dc:creator>A. Writer</dc:creator>
  </metadata>
  <manifest><item id="ch1" href="ch1.xhtml"/></manifest>
  <spine><itemref idref="ch1"/></spine>
</package>`,
		"OEBPS/ch1.xhtml": `<html><body><h1>Opening</h1><p>Some chapter text worth embedding.</p></body></html>`,
	}

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, content := range files {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf.Bytes()
}

func seedRegistration(store *memStore) Job {
	registration := &Registration{
		Book: &book.Book{ID: "b1", OwnerUserID: "user-1", UploadKey: "users/user-1/uploads/x/b.epub", Status: book.StatusProcessing},
		Task: &Task{ID: "t1", OwnerUserID: "user-1", BookID: "b1", State: TaskQueued},
	}
	store.registrations[regKey("user-1", registration.Book.UploadKey)] = registration
	store.tasks["t1"] = registration.Task
	store.books["b1"] = registration.Book

	return Job{TaskID: "t1", BookID: "b1", OwnerUserID: "user-1", UploadKey: registration.Book.UploadKey}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipelineHappyPath(t *testing.T) {
	store := newMemStore()
	job := seedRegistration(store)
	embedder := &fakeEmbedder{}
	pool := NewPool(store, &fakeDownloader{data: buildEPUB(t)}, embedder, 1<<20, discardLogger())

	pool.run(context.Background(), job)

	bookRecord := store.books["b1"]
	assert.Equal(t, book.StatusReady, bookRecord.Status)
	assert.Equal(t, "Pipeline Book", bookRecord.Title)
	assert.Equal(t, "A. Writer", bookRecord.Author)
	assert.Equal(t, 1, bookRecord.ChapterCount)

	task := store.tasks["t1"]
	assert.Equal(t, TaskCompleted, task.State)
	assert.Equal(t, 100, task.Progress)
	assert.Nil(t, task.ErrorKind)

	require.NotEmpty(t, store.embeddings)
	assert.Equal(t, 1, embedder.calls)
}

func TestPipelineClassifiesParseFailures(t *testing.T) {
	store := newMemStore()
	job := seedRegistration(store)
	pool := NewPool(store, &fakeDownloader{data: []byte("not a zip at all")}, &fakeEmbedder{}, 1<<20, discardLogger())

	pool.run(context.Background(), job)

	bookRecord := store.books["b1"]
	assert.Equal(t, book.StatusFailed, bookRecord.Status)
	require.NotNil(t, bookRecord.FailureKind)
	assert.Equal(t, "invalid_archive", *bookRecord.FailureKind)

	task := store.tasks["t1"]
	assert.Equal(t, TaskFailed, task.State)
	require.NotNil(t, task.ErrorKind)
	assert.Equal(t, "invalid_archive", *task.ErrorKind)
}

func TestPipelineRejectsOversizedArchives(t *testing.T) {
	store := newMemStore()
	job := seedRegistration(store)
	data := buildEPUB(t)
	pool := NewPool(store, &fakeDownloader{data: data}, &fakeEmbedder{}, int64(len(data)-1), discardLogger())

	pool.run(context.Background(), job)

	bookRecord := store.books["b1"]
	assert.Equal(t, book.StatusFailed, bookRecord.Status)
	require.NotNil(t, bookRecord.FailureKind)
	assert.Equal(t, failureOversized, *bookRecord.FailureKind)
}

func TestPipelineResumesAtEmbedding(t *testing.T) {
	store := newMemStore()
	job := seedRegistration(store)

	// Chapters already persisted by a previous run.
	store.chapters["b1"] = []ChapterBody{{ID: "ch-1", Idx: 0, Content: "already parsed text"}}

	downloader := &fakeDownloader{data: []byte("would fail if parsed")}
	pool := NewPool(store, downloader, &fakeEmbedder{}, 1<<20, discardLogger())

	pool.run(context.Background(), job)

	assert.False(t, downloader.called, "resume must skip the download stage")
	assert.Equal(t, book.StatusReady, store.books["b1"].Status)
	assert.Equal(t, TaskCompleted, store.tasks["t1"].State)
	assert.NotEmpty(t, store.embeddings)
}

func TestPipelineResumeSkipsEmbeddedChapters(t *testing.T) {
	store := newMemStore()
	job := seedRegistration(store)

	store.chapters["b1"] = []ChapterBody{
		{ID: "ch-1", Idx: 0, Content: "first chapter text"},
		{ID: "ch-2", Idx: 1, Content: "second chapter text"},
	}
	// The interrupted run already embedded chapter one.
	store.embeddings = []EmbeddedChunk{{ChapterID: "ch-1", Ordinal: 0, Vector: []float32{1, 0}}}

	embedder := &fakeEmbedder{}
	pool := NewPool(store, &fakeDownloader{data: []byte("unused")}, embedder, 1<<20, discardLogger())

	pool.run(context.Background(), job)

	assert.Equal(t, book.StatusReady, store.books["b1"].Status)
	assert.Equal(t, 1, embedder.calls, "only the unembedded chapter gets embedded")

	embeddedChapters := make(map[string]bool)
	for _, chunk := range store.embeddings {
		embeddedChapters[chunk.ChapterID] = true
	}
	assert.True(t, embeddedChapters["ch-1"])
	assert.True(t, embeddedChapters["ch-2"])
}
