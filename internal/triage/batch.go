package triage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"triagem/internal/domain"
)

const (
	SummaryColumn  = "resumo"
	CategoryColumn = "categoria_llm"

	OutputDirPattern = "triagem_*"
	OutputFileName   = "tickets_processados.csv"

	PreviewRows        = 15
	previewCellMaxRune = 40
)

// BatchRequest describes a CSV triage job.
type BatchRequest struct {
	// Column holds the ticket text.
	Column string `validate:"required,max=256"`
	// Labels are the candidate categories. Empty selects the defaults.
	Labels []string `validate:"omitempty,dive,max=256"`
	// Separator is a single character. Empty selects ';'.
	Separator string `validate:"omitempty,len=1"`
}

type BatchResult struct {
	ID         string
	Header     []string
	Rows       [][]string
	Tickets    []domain.Ticket
	Charset    string
	OutputPath string
	Preview    string
}

// ProcessCSV triages every row of data and writes the input columns plus
// summary and category to a fresh directory under the output dir.
func (p *Processor) ProcessCSV(ctx context.Context, data []byte, req BatchRequest) (*BatchResult, error) {
	if err := p.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("validate request: %w", err)
	}

	sep := DefaultSeparator
	if req.Separator != "" {
		sep, _ = utf8.DecodeRuneInString(req.Separator)
	}

	table, err := ReadCSV(data, sep)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	column := table.ColumnIndex(req.Column)
	if column < 0 {
		return nil, fmt.Errorf("%w: %q (available columns: %s)",
			ErrColumnNotFound, strings.TrimSpace(req.Column), strings.Join(table.Header, ", "))
	}

	batchID := uuid.NewString()

	p.log.InfoContext(ctx, "Batch is started",
		"batchID", batchID,
		"rowCount", len(table.Rows),
		"column", req.Column,
		"charset", table.Charset,
		"labelCount", len(req.Labels))

	tickets := p.ProcessTexts(ctx, table.Column(column), req.Labels)

	header := append(append([]string{}, table.Header...), SummaryColumn, CategoryColumn)
	rows := make([][]string, len(table.Rows))

	for i, row := range table.Rows {
		tickets[i].BatchID = batchID

		out := make([]string, len(table.Header), len(header))
		copy(out, row)
		rows[i] = append(out, tickets[i].Summary, tickets[i].Label)
	}

	outputPath, err := p.writeCSV(header, rows)
	if err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	p.log.InfoContext(ctx, "Batch is processed",
		"batchID", batchID,
		"rowCount", len(rows),
		"outputPath", outputPath)

	return &BatchResult{
		ID:         batchID,
		Header:     header,
		Rows:       rows,
		Tickets:    tickets,
		Charset:    table.Charset,
		OutputPath: outputPath,
		Preview:    RenderPreview(header, rows, PreviewRows),
	}, nil
}

func (p *Processor) writeCSV(header []string, rows [][]string) (string, error) {
	dir, err := os.MkdirTemp(p.outputDir, OutputDirPattern)
	if err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, OutputFileName)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}

	w := csv.NewWriter(f)
	if err = w.Write(header); err == nil {
		err = w.WriteAll(rows)
	}

	return path, errors.Join(err, f.Close())
}

// RenderPreview renders up to limit rows as a plain text table.
func RenderPreview(header []string, rows [][]string, limit int) string {
	var buf strings.Builder

	table := tablewriter.NewWriter(&buf)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, row := range rows[:max(0, min(limit, len(rows)))] {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = truncateCell(cell)
		}
		table.Append(cells)
	}

	table.Render()

	return buf.String()
}

func truncateCell(cell string) string {
	cell = strings.Join(strings.Fields(cell), " ")

	runes := []rune(cell)
	if len(runes) <= previewCellMaxRune {
		return cell
	}

	return string(runes[:previewCellMaxRune-1]) + "…"
}
