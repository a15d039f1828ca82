package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/accountsync/internal/record"
)

const accountColumns = `id, fields, created_date, last_modified_date, last_modified_by_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		a                 Account
		raw, created, lmd string
	)
	if err := row.Scan(&a.ID, &raw, &created, &lmd, &a.LastModifiedByID); err != nil {
		return Account{}, err
	}

	fields, err := unmarshalFields(raw)
	if err != nil {
		return Account{}, fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.Fields = fields

	if a.CreatedDate, err = record.ParseTime(created); err != nil {
		return Account{}, fmt.Errorf("account %s: %w", a.ID, err)
	}
	if a.LastModifiedDate, err = record.ParseTime(lmd); err != nil {
		return Account{}, fmt.Errorf("account %s: %w", a.ID, err)
	}
	return a, nil
}

// Get loads one account by id. Returns ErrNotFound if it does not exist.
func (o *Org) Get(ctx context.Context, id string) (Account, error) {
	row := o.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("get account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

// Find returns the first account, in insertion order, whose fields match
// every criteria value exactly. System fields may be used as criteria.
func (o *Org) Find(ctx context.Context, criteria record.Fields) (Account, bool, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	switch {
	case criteria[record.FieldID] != "":
		query += ` WHERE id = ?`
		args = append(args, criteria[record.FieldID])
	case criteria[record.FieldName] != "":
		query += ` WHERE name = ?`
		args = append(args, criteria[record.FieldName])
	}
	query += ` ORDER BY seq ASC`

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Account{}, false, fmt.Errorf("find account: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return Account{}, false, fmt.Errorf("find account: %w", err)
		}
		if matches(a.AllFields(), criteria) {
			return a, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return Account{}, false, fmt.Errorf("find account: %w", err)
	}
	return Account{}, false, nil
}

// Query is Find followed by a projection onto the named fields.
// An empty projection returns every field.
func (o *Org) Query(ctx context.Context, criteria record.Fields, projection []string) (record.Fields, bool, error) {
	a, found, err := o.Find(ctx, criteria)
	if err != nil || !found {
		return nil, found, err
	}
	all := a.AllFields()
	if len(projection) == 0 {
		return all, true, nil
	}
	out := record.Fields{}
	for _, name := range projection {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out, true, nil
}

// ChangedSince returns every account with LastModifiedDate strictly after
// the watermark, oldest first, fetched pageSize rows at a time.
func (o *Org) ChangedSince(ctx context.Context, watermark time.Time, pageSize int) ([]Account, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("changed since: page size must be positive, got %d", pageSize)
	}

	wm := record.FormatTime(watermark)
	cursorDate, cursorID := wm, ""
	var out []Account
	for {
		rows, err := o.db.QueryContext(ctx, `
			SELECT `+accountColumns+` FROM accounts
			WHERE last_modified_date > ?
			  AND (last_modified_date > ? OR (last_modified_date = ? AND id > ?))
			ORDER BY last_modified_date ASC, id ASC
			LIMIT ?
		`, wm, cursorDate, cursorDate, cursorID, pageSize)
		if err != nil {
			return nil, fmt.Errorf("changed since %s: %w", wm, err)
		}

		n := 0
		for rows.Next() {
			a, err := scanAccount(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("changed since %s: %w", wm, err)
			}
			out = append(out, a)
			cursorDate, cursorID = record.FormatTime(a.LastModifiedDate), a.ID
			n++
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("changed since %s: %w", wm, err)
		}

		if n < pageSize {
			break
		}
	}
	return out, nil
}

// Count returns the number of stored accounts.
func (o *Org) Count(ctx context.Context) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func matches(fields, criteria record.Fields) bool {
	for k, want := range criteria {
		if fields[k] != want {
			return false
		}
	}
	return true
}
