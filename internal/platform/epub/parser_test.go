// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package epub

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const containerDoc = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

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

func packageDoc(spineItems ...string) string {
	var manifest, spine strings.Builder
	for _, id := range spineItems {
		manifest.WriteString(`<item id="` + id + `" href="` + id + `.xhtml" media-type="application/xhtml+xml"/>`)
		spine.WriteString(`<itemref idref="` + id + `"/>`)
	}
	return `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>The Test Book</dc:title>
    <dc:creator>Ada Example</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>` + manifest.String() + `</manifest>
  <spine>` + spine.String() + `</spine>
</package>`
}

func TestParseWellFormedBook(t *testing.T) {
	data := buildArchive(t, map[string]string{
		"META-INF/container.xml": containerDoc,
		"OEBPS/content.opf":      packageDoc("ch1", "ch2"),
		"OEBPS/ch1.xhtml": `<html><head><style>p{color:red}</style></head>
			<body><h1>First Light</h1><p>It was a bright cold day in April.</p>
			<p>The clocks were striking thirteen.</p></body></html>`,
		"OEBPS/ch2.xhtml": `<html><body><h2>Second Wind</h2><p>Another chapter entirely.</p></body></html>`,
	})

	book, err := Parse(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	assert.Equal(t, "The Test Book", book.Title)
	assert.Equal(t, "Ada Example", book.Author)
	assert.Equal(t, "en", book.Language)
	require.Len(t, book.Chapters, 2)

	first := book.Chapters[0]
	assert.Equal(t, "First Light", first.Title)
	assert.Contains(t, first.Content, "bright cold day in April")
	assert.Contains(t, first.Content, "striking thirteen")
	assert.NotContains(t, first.Content, "color:red")
	assert.Equal(t, len(strings.Fields(first.Content)), first.WordCount)

	assert.Equal(t, "Second Wind", book.Chapters[1].Title)
}

func TestParsePreservesSpineOrder(t *testing.T) {
	// Manifest declares b before a; spine order must win.
	data := buildArchive(t, map[string]string{
		"META-INF/container.xml": containerDoc,
		"OEBPS/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata><title>Ordered</title></metadata>
  <manifest>
    <item id="b" href="b.xhtml"/>
    <item id="a" href="a.xhtml"/>
  </manifest>
  <spine><itemref idref="a"/><itemref idref="b"/></spine>
</package>`,
		"OEBPS/a.xhtml": `<html><body><p>alpha text</p></body></html>`,
		"OEBPS/b.xhtml": `<html><body><p>beta text</p></body></html>`,
	})

	book, err := Parse(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, book.Chapters, 2)
	assert.Contains(t, book.Chapters[0].Content, "alpha")
	assert.Contains(t, book.Chapters[1].Content, "beta")
}

func TestParseSkipsMissingSpineEntries(t *testing.T) {
	data := buildArchive(t, map[string]string{
		"META-INF/container.xml": containerDoc,
		"OEBPS/content.opf":      packageDoc("ch1", "ghost"),
		"OEBPS/ch1.xhtml":        `<html><body><p>only real chapter</p></body></html>`,
	})

	book, err := Parse(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Len(t, book.Chapters, 1)
}

func TestParseFailures(t *testing.T) {
	testCases := []struct {
		name     string
		files    map[string]string
		raw      []byte
		wantKind FailureKind
	}{
		{
			name:     "not a zip",
			raw:      []byte("definitely not a zip archive"),
			wantKind: FailureInvalidArchive,
		},
		{
			name: "missing container",
			files: map[string]string{
				"OEBPS/content.opf": packageDoc("ch1"),
			},
			wantKind: FailureMissingContainer,
		},
		{
			name: "container without rootfile",
			files: map[string]string{
				"META-INF/container.xml": `<?xml version="1.0"?><container><rootfiles/></container>`,
			},
			wantKind: FailureMissingPackage,
		},
		{
			name: "package is not xml",
			files: map[string]string{
				"META-INF/container.xml": containerDoc,
				"OEBPS/content.opf":      `{"this": "is json"}`,
			},
			wantKind: FailureInvalidPackage,
		},
		{
			name: "empty spine",
			files: map[string]string{
				"META-INF/container.xml": containerDoc,
				"OEBPS/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf"><metadata/><manifest/><spine/></package>`,
			},
			wantKind: FailureEmptySpine,
		},
		{
			name: "spine yields no text",
			files: map[string]string{
				"META-INF/container.xml": containerDoc,
				"OEBPS/content.opf":      packageDoc("ch1"),
				"OEBPS/ch1.xhtml":        `<html><body><script>var x=1;</script></body></html>`,
			},
			wantKind: FailureEmptySpine,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			data := testCase.raw
			if data == nil {
				data = buildArchive(t, testCase.files)
			}

			_, err := Parse(bytes.NewReader(data), int64(len(data)))
			require.Error(t, err)

			parseErr, ok := AsParseError(err)
			require.True(t, ok, "expected *ParseError, got %T", err)
			assert.Equal(t, testCase.wantKind, parseErr.Kind)
		})
	}
}

func TestParseRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	entry, err := writer.CreateHeader(&zip.FileHeader{Name: "../../etc/passwd"})
	require.NoError(t, err)
	_, err = entry.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	data := buf.Bytes()
	_, err = Parse(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)

	parseErr, ok := AsParseError(err)
	require.True(t, ok)
	assert.Equal(t, FailureInvalidArchive, parseErr.Kind)
}
