package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Client {
	t.Helper()
	client, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestOpen_ExecAndQuery(t *testing.T) {
	ctx := context.Background()
	client := openTemp(t)

	_, err := client.Exec(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)`)
	require.NoError(t, err)
	n, err := client.Exec(ctx, `INSERT INTO users (name, age) VALUES ('Alice', 30), ('Bob', 25)`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	res, err := client.Query(ctx, "SELECT COUNT(*) AS count FROM users")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(2), res.Rows[0]["count"])

	res, err = client.Query(ctx, "SELECT name, age FROM users WHERE age > ? ORDER BY id", 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, res.Columns)
	assert.Len(t, res.Rows, 2)
	assert.Equal(t, "Alice", res.Rows[0]["name"])
}

func TestResult_Value(t *testing.T) {
	res := &Result{Rows: []map[string]any{{"Name": "Widget"}}}

	v, ok := res.Value("Name")
	assert.True(t, ok)
	assert.Equal(t, "Widget", v)

	v, ok = res.Value("name")
	assert.True(t, ok)
	assert.Equal(t, "Widget", v)

	_, ok = res.Value("price")
	assert.False(t, ok)

	empty := &Result{}
	assert.Nil(t, empty.First())
	_, ok = empty.Value("Name")
	assert.False(t, ok)
}

func TestQuery_InvalidSQL(t *testing.T) {
	client := openTemp(t)
	_, err := client.Query(context.Background(), "SELEKT nothing")
	assert.Error(t, err)
}

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"sqlite://./test.db", "./test.db", false},
		{"sqlite:test.db", "test.db", false},
		{"file:test.db?mode=memory", "file:test.db?mode=memory", false},
		{"plain.db", "plain.db", false},
		{"", "", true},
		{"postgres://user@host/db", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseConnectionString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseConnectionString("mysql://x")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestPool_SharesClients(t *testing.T) {
	ctx := context.Background()
	conn := "sqlite://" + filepath.Join(t.TempDir(), "pool.db")
	p := NewPool()

	a, err := p.Get(ctx, conn)
	require.NoError(t, err)
	b, err := p.Get(ctx, conn)
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, p.Close())
	c, err := p.Get(ctx, conn)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	require.NoError(t, p.Close())
}
