// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package epub parses EPUB archives into plain-text chapters.

An EPUB is a ZIP container with a fixed discovery chain:

	META-INF/container.xml  →  OPF package document  →  spine  →  XHTML chapters

The parser walks that chain, extracts readable text from each spine item, and
returns chapters in spine order. It is written for hostile input: entry
counts, per-chapter size, and total decompressed size are all bounded before
any byte is inflated, and archive paths never touch the filesystem.
*/
package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/taibuivan/flowreader/internal/platform/constants"
)

// # Failure Taxonomy

// FailureKind classifies why an archive could not be parsed. The kind is
// persisted on the book record so clients can render a specific message.
type FailureKind string

const (
	FailureInvalidArchive   FailureKind = "invalid_archive"
	FailureMissingContainer FailureKind = "missing_container"
	FailureMissingPackage   FailureKind = "missing_package"
	FailureInvalidPackage   FailureKind = "invalid_package"
	FailureEmptySpine       FailureKind = "empty_spine"
	FailureOversized        FailureKind = "oversized"
)

// ParseError carries the failure classification alongside the cause.
type ParseError struct {
	Kind   FailureKind
	Detail string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("epub: %s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("epub: %s: %s", e.Kind, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// AsParseError extracts a *ParseError from an error chain.
func AsParseError(err error) (*ParseError, bool) {
	var parseErr *ParseError
	ok := errors.As(err, &parseErr)
	return parseErr, ok
}

func failf(kind FailureKind, cause error, format string, args ...any) error {
	return &ParseError{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// # Parsed Model

// Chapter is one spine item reduced to plain text.
type Chapter struct {
	Title     string
	Content   string
	WordCount int
}

// Book is the parsed result: metadata plus chapters in spine order.
type Book struct {
	Title    string
	Author   string
	Language string
	Chapters []Chapter
}

// # Container / Package Documents

type containerXML struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageXML struct {
	Metadata struct {
		Titles   []string `xml:"title"`
		Creators []string `xml:"creator"`
		Language string   `xml:"language"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID   string `xml:"id,attr"`
			Href string `xml:"href,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// # Parsing

/*
Parse reads an EPUB archive and returns its chapters in reading order.

Description: The reader must expose the full archive; size is the archive
byte length. Spine items that resolve to no manifest entry or to a missing
archive member are skipped rather than failing the whole book, but a spine
that yields zero readable chapters is an error.

Parameters:
  - reader: io.ReaderAt over the archive bytes
  - size: int64 archive length

Returns:
  - *Book: Parsed metadata and chapters
  - error: *ParseError classifying the failure
*/
func Parse(reader io.ReaderAt, size int64) (*Book, error) {
	archive, err := zip.NewReader(reader, size)
	if err != nil {
		return nil, failf(FailureInvalidArchive, err, "not a readable ZIP archive")
	}

	if len(archive.File) > constants.MaxEPUBEntries {
		return nil, failf(FailureOversized, nil,
			"archive has %d entries (limit %d)", len(archive.File), constants.MaxEPUBEntries)
	}

	entries := make(map[string]*zip.File, len(archive.File))
	for _, file := range archive.File {
		name := path.Clean(file.Name)
		if strings.HasPrefix(name, "..") || path.IsAbs(name) {
			return nil, failf(FailureInvalidArchive, nil, "entry %q escapes the archive root", file.Name)
		}
		entries[name] = file
	}

	budget := int64(constants.MaxDecompressedBytes)

	// ── 1. Container ──────────────────────────────────────────────────────
	containerData, err := readEntry(entries, "META-INF/container.xml", &budget)
	if err != nil {
		return nil, failf(FailureMissingContainer, err, "META-INF/container.xml missing or unreadable")
	}

	var container containerXML
	if err := xml.Unmarshal(containerData, &container); err != nil {
		return nil, failf(FailureMissingContainer, err, "container.xml is not valid XML")
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return nil, failf(FailureMissingPackage, nil, "container.xml declares no rootfile")
	}

	// ── 2. Package Document ───────────────────────────────────────────────
	opfPath := path.Clean(container.Rootfiles[0].FullPath)
	opfData, err := readEntry(entries, opfPath, &budget)
	if err != nil {
		return nil, failf(FailureMissingPackage, err, "package document %q missing", opfPath)
	}

	var pkg packageXML
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, failf(FailureInvalidPackage, err, "package document is not valid XML")
	}
	if len(pkg.Spine.ItemRefs) == 0 {
		return nil, failf(FailureEmptySpine, nil, "spine declares no items")
	}

	manifest := make(map[string]string, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		manifest[item.ID] = item.Href
	}

	// Chapter hrefs are relative to the package document's directory.
	opfDir := path.Dir(opfPath)

	// ── 3. Spine Walk ─────────────────────────────────────────────────────
	book := &Book{
		Title:    firstOr(pkg.Metadata.Titles, "Untitled"),
		Author:   firstOr(pkg.Metadata.Creators, ""),
		Language: pkg.Metadata.Language,
	}

	for _, ref := range pkg.Spine.ItemRefs {
		href, ok := manifest[ref.IDRef]
		if !ok {
			continue
		}

		entryPath := path.Clean(href)
		if opfDir != "." {
			entryPath = path.Clean(path.Join(opfDir, href))
		}

		data, err := readEntry(entries, entryPath, &budget)
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) && parseErr.Kind == FailureOversized {
				return nil, err
			}
			// Missing chapter file: skip, keep reading order intact.
			continue
		}

		title, text := extractText(data)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if title == "" {
			title = fmt.Sprintf("Chapter %d", len(book.Chapters)+1)
		}

		book.Chapters = append(book.Chapters, Chapter{
			Title:     title,
			Content:   text,
			WordCount: len(strings.Fields(text)),
		})
	}

	if len(book.Chapters) == 0 {
		return nil, failf(FailureEmptySpine, nil, "spine yielded no readable chapters")
	}

	return book, nil
}

// readEntry inflates one archive member under the per-chapter and global
// decompression budgets. The limits are enforced while reading, so a
// zip bomb is cut off mid-inflate instead of exhausting memory.
func readEntry(entries map[string]*zip.File, name string, budget *int64) ([]byte, error) {
	file, ok := entries[name]
	if !ok {
		return nil, fmt.Errorf("entry %q not found", name)
	}

	reader, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("entry %q unreadable: %w", name, err)
	}
	defer reader.Close()

	limit := int64(constants.MaxChapterBytes)
	if *budget < limit {
		limit = *budget
	}

	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("entry %q unreadable: %w", name, err)
	}
	if int64(len(data)) > limit {
		return nil, failf(FailureOversized, nil, "entry %q exceeds the decompression budget", name)
	}

	*budget -= int64(len(data))
	return data, nil
}

// # Text Extraction

// blockTags force a line break when closed, so paragraphs survive the
// flattening into plain text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "section": true, "article": true,
}

var skippedTags = map[string]bool{
	"script": true, "style": true, "head": true, "svg": true,
}

// extractText flattens an XHTML chapter into plain text. The first heading
// encountered becomes the chapter title.
func extractText(data []byte) (title, text string) {
	tokenizer := html.NewTokenizer(strings.NewReader(string(data)))

	var builder strings.Builder
	var headingBuilder strings.Builder
	inHeading := false
	skipDepth := 0

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			break
		}

		switch tokenType {
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedTags[tag] {
				skipDepth++
				continue
			}
			if title == "" && (tag == "h1" || tag == "h2" || tag == "h3") {
				inHeading = true
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedTags[tag] && skipDepth > 0 {
				skipDepth--
				continue
			}
			if inHeading && (tag == "h1" || tag == "h2" || tag == "h3") {
				inHeading = false
				title = strings.TrimSpace(headingBuilder.String())
			}
			if blockTags[tag] {
				builder.WriteString("\n")
			}

		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if blockTags[string(name)] {
				builder.WriteString("\n")
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			chunk := string(tokenizer.Text())
			builder.WriteString(chunk)
			if inHeading {
				headingBuilder.WriteString(chunk)
			}
		}
	}

	return title, collapseWhitespace(builder.String())
}

// collapseWhitespace normalizes runs of blank lines and intra-line spacing
// without destroying paragraph boundaries.
func collapseWhitespace(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))

	blankRun := 0
	for _, line := range lines {
		trimmed := strings.Join(strings.Fields(line), " ")
		if trimmed == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
			if len(out) == 0 {
				continue
			}
			out = append(out, "")
			continue
		}
		blankRun = 0
		out = append(out, trimmed)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

func firstOr(values []string, fallback string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
