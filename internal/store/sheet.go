package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// firstDataRow is the row number of the first data row; row 1 is the header.
const firstDataRow = 2

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnsureSheet creates an empty sheet if it does not exist.
func (s *Store) EnsureSheet(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sheets (name) VALUES (?)
		ON CONFLICT(name) DO NOTHING
	`, name)
	return wrapErr("ensure sheet", err)
}

// Sheets lists sheet names in lexical order.
func (s *Store) Sheets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sheets ORDER BY name`)
	if err != nil {
		return nil, wrapErr("list sheets", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapErr("list sheets", err)
		}
		names = append(names, name)
	}
	return names, wrapErr("list sheets", rows.Err())
}

// ReadAll returns the header and every data row of a sheet.
// Rows are returned in sheet order; rows[i] is sheet row i+2.
func (s *Store) ReadAll(ctx context.Context, sheet string) ([]string, [][]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, wrapErr("read all", err)
	}
	defer tx.Rollback()

	header, err := loadHeader(ctx, tx, sheet)
	if err != nil {
		return nil, nil, err
	}
	records, err := loadRows(ctx, tx, sheet)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, wrapErr("read all", err)
	}

	out := make([][]string, len(records))
	for i, r := range records {
		out[i] = r.cells
	}
	return header, out, nil
}

// WriteHeader replaces row 1 of the sheet, creating the sheet if needed.
// Cells beyond the new header width are cleared from every data row.
func (s *Store) WriteHeader(ctx context.Context, sheet string, header []string) error {
	encoded, err := encodeCells(header)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("write header", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sheets (name, header) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET header = excluded.header
	`, sheet, encoded); err != nil {
		return wrapErr("write header", err)
	}

	records, err := loadRows(ctx, tx, sheet)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.cells) <= len(header) {
			continue
		}
		if err := updateRow(ctx, tx, r.id, r.cells[:len(header)]); err != nil {
			return err
		}
	}

	return wrapErr("write header", tx.Commit())
}

// UpdateCells writes several cells of one row in a single transaction.
// cells maps zero-based column index to value. Readers never observe a
// partially applied update.
//
// A non-empty key must match the row's first cell; otherwise nothing is
// written and a *RowMovedError is returned.
func (s *Store) UpdateCells(ctx context.Context, sheet string, row int, key string, cells map[int]string) error {
	if len(cells) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("update cells", err)
	}
	defer tx.Rollback()

	r, err := keyedRowAt(ctx, tx, sheet, row, key)
	if err != nil {
		return err
	}

	values := r.cells
	for col, v := range cells {
		if col < 0 {
			return fmt.Errorf("update cells: negative column %d", col)
		}
		for len(values) <= col {
			values = append(values, "")
		}
		values[col] = v
	}

	if err := updateRow(ctx, tx, r.id, values); err != nil {
		return err
	}
	return wrapErr("update cells", tx.Commit())
}

// AppendRows adds rows after the last data row.
func (s *Store) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("append rows", err)
	}
	defer tx.Rollback()

	if _, err := loadHeader(ctx, tx, sheet); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, sheet, rows); err != nil {
		return err
	}
	return wrapErr("append rows", tx.Commit())
}

// DeleteRow removes a data row. Rows below it move up by one. key is checked
// as in UpdateCells.
func (s *Store) DeleteRow(ctx context.Context, sheet string, row int, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("delete row", err)
	}
	defer tx.Rollback()

	r, err := keyedRowAt(ctx, tx, sheet, row, key)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE id = ?`, r.id); err != nil {
		return wrapErr("delete row", err)
	}
	return wrapErr("delete row", tx.Commit())
}

// MoveRows appends the given rows of from to the end of to and deletes them
// from from, all in one transaction. Row numbers refer to from as it is
// before the move; duplicates are moved once.
//
// keys is nil or parallel to rows; each non-empty key is checked as in
// UpdateCells and a mismatch moves nothing.
func (s *Store) MoveRows(ctx context.Context, from, to string, rows []int, keys []string) error {
	if len(rows) == 0 {
		return nil
	}
	if keys != nil && len(keys) != len(rows) {
		return fmt.Errorf("move rows: %d keys for %d rows", len(keys), len(rows))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("move rows", err)
	}
	defer tx.Rollback()

	if _, err := loadHeader(ctx, tx, to); err != nil {
		return err
	}
	records, err := loadRows(ctx, tx, from)
	if err != nil {
		return err
	}

	picked := make([]int, 0, len(rows))
	seen := make(map[int]bool, len(rows))
	for i, row := range rows {
		idx := row - firstDataRow
		key := ""
		if keys != nil {
			key = keys[i]
		}
		if idx < 0 || idx >= len(records) {
			if key != "" {
				return &RowMovedError{Sheet: from, Row: row, Want: key}
			}
			return fmt.Errorf("move rows: %w: %s row %d", ErrRowOutOfRange, from, row)
		}
		if err := checkKey(from, row, key, records[idx].cells); err != nil {
			return err
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		picked = append(picked, idx)
	}
	sort.Ints(picked)

	moved := make([][]string, len(picked))
	for i, idx := range picked {
		moved[i] = records[idx].cells
	}
	if err := insertRows(ctx, tx, to, moved); err != nil {
		return err
	}
	for _, idx := range picked {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE id = ?`, records[idx].id); err != nil {
			return wrapErr("move rows", err)
		}
	}

	return wrapErr("move rows", tx.Commit())
}

type rowRecord struct {
	id    int64
	cells []string
}

func loadHeader(ctx context.Context, q querier, sheet string) ([]string, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT header FROM sheets WHERE name = ?`, sheet).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	if err != nil {
		return nil, wrapErr("load header", err)
	}
	return decodeCells(raw)
}

func loadRows(ctx context.Context, q querier, sheet string) ([]rowRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, cells FROM sheet_rows
		WHERE sheet = ?
		ORDER BY id ASC
	`, sheet)
	if err != nil {
		return nil, wrapErr("load rows", err)
	}
	defer rows.Close()

	var out []rowRecord
	for rows.Next() {
		var (
			r   rowRecord
			raw string
		)
		if err := rows.Scan(&r.id, &raw); err != nil {
			return nil, wrapErr("load rows", err)
		}
		if r.cells, err = decodeCells(raw); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, wrapErr("load rows", rows.Err())
}

// rowAt resolves a sheet row number to its record.
func rowAt(ctx context.Context, q querier, sheet string, row int) (rowRecord, error) {
	if row < firstDataRow {
		return rowRecord{}, fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, sheet, row)
	}

	var (
		r   rowRecord
		raw string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, cells FROM sheet_rows
		WHERE sheet = ?
		ORDER BY id ASC
		LIMIT 1 OFFSET ?
	`, sheet, row-firstDataRow).Scan(&r.id, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return rowRecord{}, fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, sheet, row)
	}
	if err != nil {
		return rowRecord{}, wrapErr("find row", err)
	}
	if r.cells, err = decodeCells(raw); err != nil {
		return rowRecord{}, err
	}
	return r, nil
}

// keyedRowAt is rowAt that also checks the row's first cell against key.
// A row that vanished below the sheet end counts as moved.
func keyedRowAt(ctx context.Context, q querier, sheet string, row int, key string) (rowRecord, error) {
	r, err := rowAt(ctx, q, sheet, row)
	if key == "" {
		return r, err
	}
	if errors.Is(err, ErrRowOutOfRange) && row >= firstDataRow {
		return rowRecord{}, &RowMovedError{Sheet: sheet, Row: row, Want: key}
	}
	if err != nil {
		return rowRecord{}, err
	}
	return r, checkKey(sheet, row, key, r.cells)
}

func checkKey(sheet string, row int, key string, cells []string) error {
	if key == "" {
		return nil
	}
	got := ""
	if len(cells) > 0 {
		got = strings.TrimSpace(cells[0])
	}
	if got != key {
		return &RowMovedError{Sheet: sheet, Row: row, Want: key, Got: got}
	}
	return nil
}

func updateRow(ctx context.Context, q querier, id int64, cells []string) error {
	encoded, err := encodeCells(cells)
	if err != nil {
		return fmt.Errorf("update row: %w", err)
	}
	_, err = q.ExecContext(ctx, `UPDATE sheet_rows SET cells = ? WHERE id = ?`, encoded, id)
	return wrapErr("update row", err)
}

func insertRows(ctx context.Context, q querier, sheet string, rows [][]string) error {
	for _, cells := range rows {
		encoded, err := encodeCells(cells)
		if err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO sheet_rows (sheet, cells) VALUES (?, ?)
		`, sheet, encoded); err != nil {
			return wrapErr("insert row", err)
		}
	}
	return nil
}

func encodeCells(cells []string) (string, error) {
	if cells == nil {
		cells = []string{}
	}
	b, err := json.Marshal(cells)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCells(raw string) ([]string, error) {
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("decode cells: %w", err)
	}
	if cells == nil {
		cells = []string{}
	}
	return cells, nil
}
