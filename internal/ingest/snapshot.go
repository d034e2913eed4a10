package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"datastory/internal/blob"
	"datastory/pkg/domain"
)

// SnapshotPrefix is where published snapshots are written in the blob store.
const SnapshotPrefix = "snapshots/"

// SnapshotSource reads the offline CSV snapshot from a blob store.
type SnapshotSource struct {
	Store   blob.Store
	Key     string
	MinYear int
}

// Kind implements Source.
func (s *SnapshotSource) Kind() domain.Source { return domain.SourceSnapshot }

// Load implements Source. The configured key wins; without it the most
// recently published snapshot is used.
func (s *SnapshotSource) Load(ctx context.Context) (Batch, error) {
	if s.Store == nil {
		return Batch{}, fmt.Errorf("snapshot store not configured")
	}
	key, err := s.resolve(ctx)
	if err != nil {
		return Batch{}, err
	}
	_, rc, err := s.Store.Get(ctx, key)
	if err != nil {
		return Batch{}, fmt.Errorf("open snapshot %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	header, rows, err := DecodeCSV(rc)
	if err != nil {
		return Batch{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	res := Tidy(header, rows, s.MinYear)
	return Batch{Records: res.Records, Dropped: res.Dropped, OutOfCoverage: res.OutOfCoverage, Location: key}, nil
}

func (s *SnapshotSource) resolve(ctx context.Context) (string, error) {
	if s.Key != "" {
		_, err := s.Store.Head(ctx, s.Key)
		if err == nil {
			return s.Key, nil
		}
		if !errors.Is(err, blob.ErrNotFound) {
			return "", fmt.Errorf("stat snapshot %s: %w", s.Key, err)
		}
	}
	published, err := s.Store.List(ctx, SnapshotPrefix)
	if err != nil {
		return "", fmt.Errorf("list snapshots: %w", err)
	}
	if len(published) == 0 {
		return "", fmt.Errorf("%w: snapshot %s", blob.ErrNotFound, s.Key)
	}
	return published[len(published)-1].Key, nil
}

// DecodeCSV reads a delimited snapshot into a header and rows. Short rows
// leave the trailing columns blank.
func DecodeCSV(r io.Reader) ([]string, []Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrNoData
	}
	if err != nil {
		return nil, nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	var rows []Row
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// EncodeCSV writes records in the snapshot layout, which DecodeCSV and Tidy
// read back into equal records.
func EncodeCSV(w io.Writer, records []domain.Record) error {
	width := 1
	for _, r := range records {
		if len(r.Combination) > width {
			width = len(r.Combination)
		}
	}
	header := []string{"case_id", "case_year", "sex", "age", "incident_zip"}
	for i := 1; i <= width; i++ {
		header = append(header, "combined_od"+strconv.Itoa(i))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	line := make([]string, len(header))
	for _, r := range records {
		for i := range line {
			line[i] = ""
		}
		line[0] = r.CaseID
		line[1] = strconv.Itoa(r.Year)
		line[2] = string(r.Sex)
		if r.Age != nil {
			line[3] = strconv.Itoa(*r.Age)
		}
		line[4] = r.ZIP
		copy(line[5:], r.Combination)
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PublishSnapshot writes the table to a new timestamped snapshot object so the
// next offline load uses it.
func PublishSnapshot(ctx context.Context, store blob.Store, table *domain.Table, now time.Time) (blob.Info, error) {
	records := make([]domain.Record, table.Len())
	for i := range records {
		records[i] = table.Record(i)
	}
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, records); err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	meta := table.Meta()
	key := SnapshotPrefix + now.UTC().Format("20060102T150405Z") + ".csv"
	return store.Put(ctx, key, &buf, blob.PutOptions{
		ContentType: "text/csv",
		Metadata: map[string]string{
			"rows":        strconv.Itoa(table.Len()),
			"loaded_from": string(meta.LoadedFrom),
			"year_min":    strconv.Itoa(meta.YearMin),
			"year_max":    strconv.Itoa(meta.YearMax),
		},
	})
}
