package org

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/accountsync/internal/record"
)

// Create inserts each record as a new account and reports a per-record
// outcome. A record without a Name is rejected individually; the other
// records in the call are still created.
func (o *Org) Create(ctx context.Context, records []record.Record, by string) ([]SaveResult, error) {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create accounts: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	results := make([]SaveResult, 0, len(records))
	for _, r := range records {
		fields := businessFields(r)
		name := fields[record.FieldName]
		if name == "" {
			results = append(results, SaveResult{
				Success: false,
				Errors:  []string{"REQUIRED_FIELD_MISSING: Name"},
			})
			continue
		}

		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("create accounts: marshal fields: %w", err)
		}

		id := o.ids.NewID(AccountKeyPrefix)
		now := record.FormatTime(o.clock.Now())
		_, err = tx.ExecContext(ctx, `
			INSERT INTO accounts
			(id, name, fields, created_date, last_modified_date, last_modified_by_id)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, name, string(fieldsJSON), now, now, by)
		if err != nil {
			return nil, fmt.Errorf("create accounts: insert %q: %w", name, err)
		}

		results = append(results, SaveResult{ID: id, Success: true})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create accounts: commit: %w", err)
	}

	o.logger.Debug("accounts created", "count", len(records), "by", by)
	return results, nil
}

// Update merges the record's business fields into an existing account and
// stamps LastModifiedDate and LastModifiedById. Returns ErrNotFound if the
// id does not exist.
func (o *Org) Update(ctx context.Context, id string, r record.Record, by string) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update account %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT fields FROM accounts WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}

	fields, err := unmarshalFields(raw)
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	for k, v := range businessFields(r) {
		fields[k] = v
	}
	if fields[record.FieldName] == "" {
		return fmt.Errorf("update account %s: REQUIRED_FIELD_MISSING: Name", id)
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("update account %s: marshal fields: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET name = ?, fields = ?, last_modified_date = ?, last_modified_by_id = ?
		WHERE id = ?
	`, fields[record.FieldName], string(fieldsJSON), record.FormatTime(o.clock.Now()), by, id)
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update account %s: commit: %w", id, err)
	}

	o.logger.Debug("account updated", "id", id, "by", by)
	return nil
}

// Delete removes accounts by id. Ids that do not exist get an unsuccessful
// result rather than an error. An empty id list is a no-op.
func (o *Org) Delete(ctx context.Context, ids []string) ([]DeleteResult, error) {
	results := make([]DeleteResult, 0, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete accounts: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("delete account %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("delete account %s: %w", id, err)
		}
		if n == 0 {
			results = append(results, DeleteResult{ID: id, Success: false, Errors: []string{"ENTITY_IS_DELETED"}})
			continue
		}
		results = append(results, DeleteResult{ID: id, Success: true})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete accounts: commit: %w", err)
	}

	o.logger.Debug("accounts deleted", "count", len(ids))
	return results, nil
}

func unmarshalFields(raw string) (record.Fields, error) {
	fields := record.Fields{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}
