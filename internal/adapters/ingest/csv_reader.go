package ingest

import (
	"encoding/csv"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

// Reader converts rows of the legacy CSV export into email records for one
// batch. It is a thin collaborator shim: dialect handling and structural
// validation happen upstream.
type Reader struct {
	logger *zap.Logger
}

// NewReader creates a batch reader
func NewReader(logger *zap.Logger) *Reader {
	return &Reader{logger: logger}
}

// timeLayouts are the timestamp formats seen in the export
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ReadBatch parses CSV rows into a deduplicated, ordered record sequence.
// The export uses "-" for null values; rows whose key fields repeat an
// earlier row are dropped.
func (r *Reader) ReadBatch(src io.Reader) ([]*core.EmailRecord, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	var records []*core.EmailRecord
	seen := make(map[string]struct{})
	rowNum := 1

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			r.logger.Warn("Skipping unreadable CSV row", zap.Int("row", rowNum), zap.Error(err))
			continue
		}

		rec := r.parseRow(cols, row)
		if rec.Sender == "" && rec.Subject == "" {
			r.logger.Warn("Skipping empty CSV row", zap.Int("row", rowNum))
			continue
		}

		if _, dup := seen[rec.ID]; dup {
			r.logger.Debug("Skipping duplicate record", zap.String("record_id", rec.ID))
			continue
		}
		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	}

	r.logger.Info("Parsed CSV batch", zap.Int("records", len(records)))
	return records, nil
}

func (r *Reader) parseRow(cols map[string]int, row []string) *core.EmailRecord {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		v := strings.TrimSpace(row[i])
		if v == "-" {
			// Legacy export convention for null
			return ""
		}
		return v
	}

	rec := &core.EmailRecord{
		Sender:       field("sender"),
		Subject:      field("subject"),
		Body:         field("body"),
		Recipients:   splitList(field("recipients")),
		Leaver:       field("leaver"),
		Termination:  field("termination_date"),
		Department:   field("department"),
		BusinessUnit: field("bunit"),
		Status:       core.StatusUnscored,
	}

	if raw := field("_time"); raw != "" {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				rec.Timestamp = t
				break
			}
		}
	}

	for _, name := range splitList(field("attachments")) {
		rec.Attachments = append(rec.Attachments, core.Attachment{Name: name})
	}

	rec.ID = recordID(rec)
	return rec
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// recordID derives a stable identifier from the record's key fields so
// re-ingesting the same export addresses the same records.
func recordID(rec *core.EmailRecord) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s|%s",
		rec.Timestamp.UnixNano(), rec.Sender, rec.Subject, strings.Join(rec.Recipients, ","))
	return fmt.Sprintf("%016x", h.Sum64())
}
