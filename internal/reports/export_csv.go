package reports

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	_, err := s.buf.WriteString(line)
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// WriteValuationCSV renders the valuation report as CSV with a metadata
// comment header.
func WriteValuationCSV(w io.Writer, report Valuation) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeComment("# Report: Stock Valuation"); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Generated: %s", report.GeneratedAt.Format("2006-01-02 15:04:05"))); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Category", "Products", "Total Value"}); err != nil {
		return err
	}
	for _, c := range report.Categories {
		if err := streamer.writeRow([]string{
			c.CategoryName,
			strconv.FormatInt(c.ProductCount, 10),
			c.TotalValue.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	if err := streamer.writeRow([]string{"", "", ""}); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Total", "", report.TotalValue.StringFixed(2)}); err != nil {
		return err
	}
	return streamer.Flush()
}

// WriteTurnoverCSV renders the turnover report as CSV.
func WriteTurnoverCSV(w io.Writer, report Turnover) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeComment("# Report: Stock Turnover"); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Window: %s to %s", report.From.Format("2006-01-02"), report.To.Format("2006-01-02"))); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Reference", "Product", "Current Stock", "Quantity Out", "Turnover Rate"}); err != nil {
		return err
	}
	for _, item := range report.Items {
		if err := streamer.writeRow([]string{
			item.Reference,
			item.ProductName,
			strconv.FormatInt(item.CurrentStock, 10),
			strconv.FormatInt(item.QuantityOut, 10),
			strconv.FormatFloat(item.TurnoverRate, 'f', 2, 64),
		}); err != nil {
			return err
		}
	}
	return streamer.Flush()
}
