// Package sqlrecords maps domain records onto the overdose_records warehouse
// table shared by the SQLite and Postgres stores.
package sqlrecords

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"datastory/pkg/domain"
)

// TableName is the warehouse table holding one row per case.
const TableName = "overdose_records"

var columns = []string{"case_id", "case_year", "sex", "age", "zip_code", "toxicology"}

// Dialect captures the statements that differ between SQL engines.
type Dialect struct {
	// DDL creates the table when missing.
	DDL string
	// Clear removes every row before a reload.
	Clear string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SelectStatement lists every record in a stable order.
func SelectStatement() string {
	return "SELECT " + strings.Join(columns, ", ") + " FROM " + TableName + " ORDER BY case_year, case_id"
}

// InsertStatement inserts a single record using the dialect placeholders.
func (d Dialect) InsertStatement() string {
	marks := make([]string, len(columns))
	for i := range columns {
		marks[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", TableName, strings.Join(columns, ", "), strings.Join(marks, ", "))
}

// EnsureSchema applies the dialect DDL.
func EnsureSchema(ctx context.Context, db Execer, d Dialect) error {
	if _, err := db.ExecContext(ctx, d.DDL); err != nil {
		return fmt.Errorf("ensure %s table: %w", TableName, err)
	}
	return nil
}

// Load reads every row and rebuilds domain records. Toxicology is stored as a
// JSON array of combination labels, which classify back to the same classes.
func Load(ctx context.Context, db Queryer) ([]domain.Record, error) {
	rows, err := db.QueryContext(ctx, SelectStatement())
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", TableName, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Record
	for rows.Next() {
		var (
			caseID string
			year   int
			sex    string
			age    sql.NullInt64
			zip    sql.NullString
			tox    sql.NullString
		)
		if err := rows.Scan(&caseID, &year, &sex, &age, &zip, &tox); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var labels []string
		if tox.Valid && tox.String != "" {
			if err := json.Unmarshal([]byte(tox.String), &labels); err != nil {
				return nil, fmt.Errorf("decode toxicology for %s: %w", caseID, err)
			}
		}
		rec := domain.NewRecord(caseID, year, domain.ParseSex(sex), zip.String, labels)
		if age.Valid {
			v := int(age.Int64)
			rec.Age = &v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", TableName, err)
	}
	return out, nil
}

// Replace clears the table and inserts records through tx.
func Replace(ctx context.Context, tx Execer, d Dialect, records []domain.Record) error {
	if _, err := tx.ExecContext(ctx, d.Clear); err != nil {
		return fmt.Errorf("clear %s: %w", TableName, err)
	}
	insert := d.InsertStatement()
	for _, rec := range records {
		tox, err := json.Marshal(rec.Combination)
		if err != nil {
			return err
		}
		var age any
		if rec.Age != nil {
			age = int64(*rec.Age)
		}
		var zip any
		if rec.HasZIP() {
			zip = rec.ZIP
		}
		if _, err := tx.ExecContext(ctx, insert, rec.CaseID, int64(rec.Year), string(rec.Sex), age, zip, string(tox)); err != nil {
			return fmt.Errorf("insert %s: %w", rec.CaseID, err)
		}
	}
	return nil
}
