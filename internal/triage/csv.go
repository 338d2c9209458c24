package triage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

const (
	DefaultSeparator = ';'

	charsetUTF8        = "utf-8"
	charsetWindows1252 = "windows-1252"
)

var (
	ErrEmptyCSV       = errors.New("csv has no header")
	ErrColumnNotFound = errors.New("column is not found")

	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// Table is a decoded CSV file.
type Table struct {
	Header  []string
	Rows    [][]string
	Charset string
}

// ColumnIndex returns the index of the header named name, ignoring
// surrounding spaces, or -1.
func (t Table) ColumnIndex(name string) int {
	name = strings.TrimSpace(name)

	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}

	return -1
}

// Column returns the cells of column i, using "" for short rows.
func (t Table) Column(i int) []string {
	cells := make([]string, len(t.Rows))

	for r, row := range t.Rows {
		if i >= 0 && i < len(row) {
			cells[r] = row[i]
		}
	}

	return cells
}

// ReadCSV decodes data to UTF-8 and parses it with sep as the field
// separator. A zero sep selects DefaultSeparator.
func ReadCSV(data []byte, sep rune) (Table, error) {
	if sep == 0 {
		sep = DefaultSeparator
	}

	decoded, charset, err := decodeText(data)
	if err != nil {
		return Table{}, fmt.Errorf("decode text (charset = %s): %w", charset, err)
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, ErrEmptyCSV
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read rows: %w", err)
	}

	return Table{Header: header, Rows: rows, Charset: charset}, nil
}

// decodeText returns data as UTF-8 without BOM. Valid UTF-8 is kept as is;
// otherwise the charset sniffed by mimetype is used, defaulting to
// windows-1252 which covers the Latin-1 exports of PT-BR spreadsheets.
func decodeText(data []byte) ([]byte, string, error) {
	if utf8.Valid(data) {
		return bytes.TrimPrefix(data, utf8BOM), charsetUTF8, nil
	}

	charset := sniffCharset(data)

	var dec *encoding.Decoder
	switch charset {
	case "utf-16le":
		dec = xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewDecoder()
	case "utf-16be":
		dec = xunicode.UTF16(xunicode.BigEndian, xunicode.UseBOM).NewDecoder()
	case "iso-8859-1":
		dec = charmap.ISO8859_1.NewDecoder()
	default:
		charset = charsetWindows1252
		dec = charmap.Windows1252.NewDecoder()
	}

	out, err := dec.Bytes(data)
	if err != nil {
		return nil, charset, err
	}

	return bytes.TrimPrefix(out, utf8BOM), charset, nil
}

func sniffCharset(data []byte) string {
	_, params, err := mime.ParseMediaType(mimetype.Detect(data).String())
	if err != nil {
		return ""
	}

	return strings.ToLower(params["charset"])
}
