package pdfextract

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"
)

// ExtractText reads the entire content of r and extracts plain text from the
// PDF along with its page count. Returns an empty string and nil error if the
// PDF has no extractable text.
func ExtractText(r io.Reader) (string, int, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	if len(b) == 0 {
		return "", 0, nil
	}
	readerAt := bytes.NewReader(b)
	pdfReader, err := pdf.NewReader(readerAt, int64(len(b)))
	if err != nil {
		return "", 0, err
	}
	pages := pdfReader.NumPage()
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", pages, err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", pages, err
	}
	return string(out), pages, nil
}
