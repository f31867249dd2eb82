package filedb

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// Codec translates between a dataset's rows and one flat file. The schema
// drives column order and decoded value types.
type Codec interface {
	// Ext is the file extension including the dot.
	Ext() string
	Encode(rows []types.Row, schema *types.Schema) ([]byte, error)
	Decode(data []byte, schema *types.Schema) ([]types.Row, error)
}

func codecFor(token string) (Codec, error) {
	switch token {
	case "json":
		return jsonCodec{}, nil
	case "yaml":
		return yamlCodec{}, nil
	case "csv":
		return csvCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, token)
	}
}

type jsonCodec struct{}

func (jsonCodec) Ext() string { return ".json" }

func (jsonCodec) Encode(rows []types.Row, schema *types.Schema) ([]byte, error) {
	normalized := make([]types.Row, len(rows))
	for i, row := range rows {
		normalized[i] = normalizeForText(row)
	}
	return json.MarshalIndent(normalized, "", "  ")
}

func (jsonCodec) Decode(data []byte, schema *types.Schema) ([]types.Row, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	return coerceRows(raw, schema), nil
}

type yamlCodec struct{}

func (yamlCodec) Ext() string { return ".yaml" }

func (yamlCodec) Encode(rows []types.Row, schema *types.Schema) ([]byte, error) {
	normalized := make([]types.Row, len(rows))
	for i, row := range rows {
		normalized[i] = normalizeForText(row)
	}
	return yaml.Marshal(normalized)
}

func (yamlCodec) Decode(data []byte, schema *types.Schema) ([]types.Row, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	return coerceRows(raw, schema), nil
}

type csvCodec struct{}

func (csvCodec) Ext() string { return ".csv" }

// Encode writes a header row of the schema's persistent attribute names
// followed by one record per row. Null values render as empty cells; list and
// map values as JSON.
func (csvCodec) Encode(rows []types.Row, schema *types.Schema) ([]byte, error) {
	columns := columnNames(schema)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = cellText(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (csvCodec) Decode(data []byte, schema *types.Schema) ([]types.Row, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	rows := make([]types.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		raw := types.Row{}
		for i, col := range header {
			if i >= len(record) || record[i] == "" {
				continue
			}
			raw[col] = cellValue(record[i], col, schema)
		}
		rows = append(rows, types.CoerceRow(raw, schema))
	}
	return rows, nil
}

func columnNames(schema *types.Schema) []string {
	attrs := schema.Persistent()
	out := make([]string, len(attrs))
	for i, attr := range attrs {
		out[i] = attr.Name
	}
	return out
}

func cellText(v any) string {
	if v == nil {
		return ""
	}
	switch v.(type) {
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(types.FormatValue(v))
	}
}

func cellValue(cell, column string, schema *types.Schema) any {
	attr, ok := schema.Attribute(column)
	if !ok {
		return cell
	}
	switch attr.Type {
	case types.List:
		var v []any
		if err := json.Unmarshal([]byte(cell), &v); err == nil {
			return v
		}
	case types.Map:
		var v map[string]any
		if err := json.Unmarshal([]byte(cell), &v); err == nil {
			return v
		}
	}
	return cell
}

func coerceRows(raw []map[string]any, schema *types.Schema) []types.Row {
	rows := make([]types.Row, len(raw))
	for i, m := range raw {
		rows[i] = types.CoerceRow(types.Row(m), schema)
	}
	return rows
}

// normalizeForText renders timestamps as RFC3339 strings so every codec emits
// the same textual form.
func normalizeForText(row types.Row) types.Row {
	out := row.Clone()
	for k, v := range out {
		switch v.(type) {
		case nil, string, bool, int, int64, float64, []any, map[string]any:
		default:
			out[k] = types.FormatValue(v)
		}
	}
	return out
}
