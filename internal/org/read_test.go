package org

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/accountsync/internal/record"
	"github.com/roach88/accountsync/internal/testutil"
)

func TestQuery_MatchesAllCriteria(t *testing.T) {
	o, _ := createTestOrg(t, SystemA)
	ctx := context.Background()

	_, err := o.Create(ctx, []record.Record{
		{"Name": "dup", "Phone": "1", "Description": "first"},
		{"Name": "dup", "Phone": "2", "Description": "second"},
	}, "u")
	require.NoError(t, err)

	got, found, err := o.Query(ctx, record.Fields{"Name": "dup", "Phone": "2"}, []string{"Id", "Name", "Description"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "second", got["Description"])
	assert.Equal(t, "001A00000000000002", got["Id"])
	assert.Len(t, got, 3)
}

func TestQuery_FirstMatchInInsertionOrder(t *testing.T) {
	o, _ := createTestOrg(t, SystemA)
	ctx := context.Background()

	_, err := o.Create(ctx, []record.Record{
		{"Name": "dup", "Description": "first"},
		{"Name": "dup", "Description": "second"},
	}, "u")
	require.NoError(t, err)

	got, found, err := o.Query(ctx, record.Fields{"Name": "dup"}, nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", got["Description"])
	assert.Contains(t, got, "LastModifiedDate", "empty projection returns system fields too")
}

func TestQuery_NoMatch(t *testing.T) {
	o, _ := createTestOrg(t, SystemA)

	got, found, err := o.Query(context.Background(), record.Fields{"Name": "missing"}, nil)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestFind_ByID(t *testing.T) {
	o, _ := createTestOrg(t, SystemB)
	ctx := context.Background()

	results, err := o.Create(ctx, []record.Record{{"Name": "a"}, {"Name": "b"}}, "u")
	require.NoError(t, err)

	a, found, err := o.Find(ctx, record.Fields{"Id": results[1].ID})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", a.Name())
}

func TestChangedSince_PagesThroughEverything(t *testing.T) {
	o, clock := createTestOrg(t, SystemA)
	ctx := context.Background()

	watermark := clock.Now()
	clock.Advance(time.Second)

	var batch []record.Record
	for i := 0; i < 7; i++ {
		batch = append(batch, record.Record{"Name": fmt.Sprintf("acc-%d", i)})
	}
	_, err := o.Create(ctx, batch, "u")
	require.NoError(t, err)

	for _, pageSize := range []int{1, 3, 7, 100} {
		t.Run(fmt.Sprintf("page_%d", pageSize), func(t *testing.T) {
			got, err := o.ChangedSince(ctx, watermark, pageSize)
			require.NoError(t, err)
			require.Len(t, got, 7)
			for i, a := range got {
				assert.Equal(t, fmt.Sprintf("acc-%d", i), a.Name())
			}
		})
	}
}

func TestChangedSince_ExcludesWatermark(t *testing.T) {
	o, _ := createTestOrg(t, SystemA)
	ctx := context.Background()

	results, err := o.Create(ctx, []record.Record{{"Name": "old"}, {"Name": "new"}}, "u")
	require.NoError(t, err)
	old, err := o.Get(ctx, results[0].ID)
	require.NoError(t, err)

	got, err := o.ChangedSince(ctx, old.LastModifiedDate, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Name())
}

func TestChangedSince_RejectsBadPageSize(t *testing.T) {
	o, _ := createTestOrg(t, SystemA)
	_, err := o.ChangedSince(context.Background(), testutil.Epoch, 0)
	assert.Error(t, err)
}

func TestCreate_BeginFailurePropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	o := New(db, SystemA)
	_, err = o.Create(context.Background(), []record.Record{{"Name": "x"}}, "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_ExecFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM accounts").
		WithArgs("001A00000000000001").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	o := New(db, SystemA)
	_, err = o.Delete(context.Background(), []string{"001A00000000000001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_CorruptFieldsJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "fields", "created_date", "last_modified_date", "last_modified_by_id"}).
		AddRow("001A00000000000001", "{not json", "2014-06-02T13:00:00.000Z", "2014-06-02T13:00:00.000Z", "u")
	mock.ExpectQuery("FROM accounts WHERE name").WithArgs("x").WillReturnRows(rows)

	o := New(db, SystemA)
	_, _, err = o.Find(context.Background(), record.Fields{"Name": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal fields")
	assert.NoError(t, mock.ExpectationsWereMet())
}
