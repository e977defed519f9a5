package data

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/abdul-hamid-achik/hitplan/packages/db"
	"github.com/tidwall/gjson"
)

// Static returns a provider yielding a copy of rows on every activation.
func Static(rows ...unit.Row) unit.DataProvider {
	return unit.ProviderFunc(func(context.Context) ([]unit.Row, error) {
		out := make([]unit.Row, len(rows))
		for i, r := range rows {
			values := make(map[string]any, len(r.Values))
			for k, v := range r.Values {
				values[k] = v
			}
			out[i] = unit.Row{Name: r.Name, Values: values}
		}
		return out, nil
	})
}

// FromMaps builds rows from plain objects. The nameKey field, when present,
// names the row.
func FromMaps(items []map[string]any, nameKey string) []unit.Row {
	rows := make([]unit.Row, len(items))
	for i, item := range items {
		rows[i] = unit.Row{Name: rowName(item, nameKey), Values: item}
	}
	return rows
}

// JSONFile reads rows from a JSON document. Path is a gjson path selecting
// the array of rows; empty means the document root. Object elements become
// row values; any other element is stored under "value".
type JSONFile struct {
	File    string
	Path    string
	NameKey string
}

func (j *JSONFile) Rows(context.Context) ([]unit.Row, error) {
	raw, err := os.ReadFile(j.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("data file %s is not valid JSON", filepath.Base(j.File))
	}

	list := gjson.ParseBytes(raw)
	if j.Path != "" {
		list = list.Get(j.Path)
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("data file %s: %q does not select an array", filepath.Base(j.File), j.Path)
	}

	var rows []unit.Row
	list.ForEach(func(_, el gjson.Result) bool {
		values, ok := el.Value().(map[string]any)
		if !ok {
			values = map[string]any{"value": el.Value()}
		}
		rows = append(rows, unit.Row{Name: rowName(values, j.NameKey), Values: values})
		return true
	})
	return rows, nil
}

// Query reads rows from a SQL query; every result row becomes a data row.
type Query struct {
	Pool       *db.Pool
	Database   string
	Statement  string
	NameColumn string
}

func (q *Query) Rows(ctx context.Context) ([]unit.Row, error) {
	client, err := q.Pool.Get(ctx, q.Database)
	if err != nil {
		return nil, err
	}
	res, err := client.Query(ctx, q.Statement)
	if err != nil {
		return nil, err
	}
	return FromMaps(res.Rows, q.NameColumn), nil
}

func rowName(values map[string]any, key string) string {
	if key == "" {
		return ""
	}
	v, ok := values[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
