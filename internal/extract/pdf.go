// Package extract reads PDFs into per-page text and embedded raster images.
//
// Page indices are 0-based at this boundary. The underlying text library
// counts pages from 1; the conversion happens here and nowhere else.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"textbook-rag-platform/utils"
)

// PageText is one page's extracted text. Pages with empty trimmed text are
// not reported.
type PageText struct {
	PageIndex int
	Text      string
}

// PageImage is one embedded raster image, ordered by page then by position
// within the page.
type PageImage struct {
	PageIndex  int
	ImageIndex int
	Data       []byte
	Ext        string
}

// PageFailure records a page-level parse failure. The caller decides whether
// a skip is acceptable; a single corrupt page must not abort the rest of the
// document.
type PageFailure struct {
	PageIndex int
	Err       error
}

// TextResult carries the successfully extracted pages plus explicit skip
// records for pages that failed to parse.
type TextResult struct {
	Pages   []PageText
	Skipped []PageFailure
}

// ImageResult carries extracted images plus page-level skip records.
type ImageResult struct {
	Images  []PageImage
	Skipped []PageFailure
}

// Extractor reads PDF files from disk.
type Extractor struct{}

// New creates a PDF extractor.
func New() *Extractor {
	return &Extractor{}
}

// Text extracts per-page plain text. An error is returned only when the file
// cannot be opened or parsed as a whole; individual page failures become
// Skipped entries.
func (e *Extractor) Text(path string) (*TextResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF file: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}

	result := &TextResult{}
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			result.Skipped = append(result.Skipped, PageFailure{
				PageIndex: i - 1,
				Err:       fmt.Errorf("page %d has no content object", i),
			})
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			result.Skipped = append(result.Skipped, PageFailure{PageIndex: i - 1, Err: err})
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		result.Pages = append(result.Pages, PageText{PageIndex: i - 1, Text: text})
	}

	return result, nil
}

// Images extracts every embedded raster image in page order, then per-page
// image order. An error is returned only when the document itself cannot be
// processed.
func (e *Extractor) Images(path string) (*ImageResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	defer f.Close()

	result := &ImageResult{}
	perPage := make(map[int]int)

	digest := func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
		data, err := io.ReadAll(img)
		if err != nil {
			result.Skipped = append(result.Skipped, PageFailure{PageIndex: img.PageNr - 1, Err: err})
			return nil
		}
		idx := perPage[img.PageNr]
		perPage[img.PageNr]++
		result.Images = append(result.Images, PageImage{
			PageIndex:  img.PageNr - 1,
			ImageIndex: idx,
			Data:       data,
			Ext:        utils.NormalizeImageExt(img.FileType),
		})
		return nil
	}

	if err := api.ExtractImages(f, nil, digest, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from %s: %w", path, err)
	}

	return result, nil
}
