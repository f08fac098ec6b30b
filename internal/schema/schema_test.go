package schema

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectIntrospection(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("artists").AddRow("artworks"))
	mock.ExpectQuery(`FROM information_schema.columns`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "max_length", "nullable", "comment"}).
			AddRow("artists", "artist_id", "integer", int64(0), false, "").
			AddRow("artists", "full_name", "character varying", int64(200), true, "display name").
			AddRow("artworks", "artwork_id", "integer", int64(0), false, "").
			AddRow("artworks", "artist_id", "integer", int64(0), true, ""))
	mock.ExpectQuery(`PRIMARY KEY`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("artists", "artist_id").
			AddRow("artworks", "artwork_id"))
	mock.ExpectQuery(`FOREIGN KEY`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "foreign_table", "foreign_column"}).
			AddRow("artworks", "artist_id", "artists", "artist_id"))
	mock.ExpectQuery(`FROM pg_class`).
		WillReturnRows(sqlmock.NewRows([]string{"relname", "reltuples"}).
			AddRow("artists", int64(15000)).
			AddRow("artworks", int64(-1)))
}

func TestLoadAndTableInfo(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	expectIntrospection(mock)
	mock.ExpectQuery(`SELECT \* FROM "artists" LIMIT 3`).
		WillReturnRows(mock.NewRowsWithColumnDefinition(
			mock.NewColumn("artist_id").OfType("INT4", int64(0)),
			mock.NewColumn("full_name").OfType("VARCHAR", ""),
		).AddRow(int64(1), "Robert Arneson").AddRow(int64(2), nil))
	mock.ExpectQuery(`SELECT \* FROM "artworks" LIMIT 3`).
		WillReturnError(errors.New("permission denied"))

	cache := NewCache()
	require.NoError(t, cache.Load(context.Background(), db, 3))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, cache.TableCount())
	assert.False(t, cache.GetLastRefresh().IsZero())

	tables := cache.GetTables()
	assert.Equal(t, int64(15000), tables[0].RowEstimate)
	assert.Equal(t, int64(0), tables[1].RowEstimate)
	assert.True(t, tables[0].Columns[0].IsPK)

	want := "CREATE TABLE artists (\n" +
		"\tartist_id INTEGER NOT NULL,\n" +
		"\tfull_name VARCHAR(200),\n" +
		"\tCONSTRAINT artists_pkey PRIMARY KEY (artist_id)\n" +
		")\n\n" +
		"/*\n2 rows from artists table:\n" +
		"artist_id\tfull_name\n" +
		"1\tRobert Arneson\n" +
		"2\t\n" +
		"*/\n\n" +
		"CREATE TABLE artworks (\n" +
		"\tartwork_id INTEGER NOT NULL,\n" +
		"\tartist_id INTEGER,\n" +
		"\tCONSTRAINT artworks_pkey PRIMARY KEY (artwork_id),\n" +
		"\tFOREIGN KEY(artist_id) REFERENCES artists (artist_id)\n" +
		")"
	assert.Equal(t, want, cache.TableInfo())
}

func TestLoadWithoutSamples(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	expectIntrospection(mock)

	cache := NewCache()
	require.NoError(t, cache.Load(context.Background(), db, 0))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.NotContains(t, cache.TableInfo(), "/*")
}

func TestLoadFailureKeepsPreviousTables(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	cache := NewCache()
	cache.Tables = []Table{{Name: "artists"}}
	mock.ExpectQuery(`FROM information_schema.tables`).WillReturnError(errors.New("connection refused"))

	assert.Error(t, cache.Load(context.Background(), db, 3))
	assert.Equal(t, 1, cache.TableCount())
}

func TestColumnType(t *testing.T) {
	assert.Equal(t, "VARCHAR(200)", columnType(Column{Type: "character varying", MaxLength: 200}))
	assert.Equal(t, "NUMERIC", columnType(Column{Type: "numeric"}))
	assert.Equal(t, "TIMESTAMP WITH TIME ZONE", columnType(Column{Type: "timestamp with time zone"}))
}

func TestSourceRefresh(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	src := NewSource(db, 0)
	assert.Equal(t, 0, src.TableCount())

	expectIntrospection(mock)
	require.NoError(t, src.Refresh(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 2, src.TableCount())
	assert.Contains(t, src.TableInfo(), "CREATE TABLE artworks")
}
