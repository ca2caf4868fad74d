// Package sheets turns tabular input into import rows. Headers are resolved
// through a fixed alias table so localized and English column names both
// map onto the internal fields.
package sheets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/WessleyAI/rdsgraph/engine/codes"
)

// Field is an internal column.
type Field string

const (
	FieldName     Field = "name"
	FieldAsset    Field = "asset_code"
	FieldFunction Field = "function"
	FieldLocation Field = "location"
	FieldPower    Field = "power"
)

// Aliases lists accepted headers per field, most preferred first.
var Aliases = map[Field][]string{
	FieldName:     {"名称", "Name"},
	FieldAsset:    {"设备编码", "DeviceCode", "AssetCode"},
	FieldFunction: {"工艺功能", "ProcessFunction"},
	FieldLocation: {"位置", "Location"},
	FieldPower:    {"电源功能", "PowerFunction"},
}

// aspectFields maps code columns onto aspect types.
var aspectFields = []struct {
	field  Field
	aspect codes.AspectType
}{
	{FieldFunction, codes.AspectFunction},
	{FieldLocation, codes.AspectLocation},
	{FieldPower, codes.AspectPower},
}

// Row is one input record.
type Row struct {
	Sheet     string                      `json:"sheet"`
	Index     int                         `json:"index"`
	Name      string                      `json:"name"`
	AssetCode string                      `json:"asset_code,omitempty"`
	Codes     map[codes.AspectType]string `json:"codes"`
}

// Empty reports whether the row carries no name, asset code or code cell.
func (r Row) Empty() bool {
	if r.Name != "" || r.AssetCode != "" {
		return false
	}
	for _, c := range r.Codes {
		if c != "" {
			return false
		}
	}
	return true
}

// FromRecord builds a row from one header->value record.
func FromRecord(sheet string, index int, rec map[string]string) Row {
	lookup := make(map[string]string, len(rec))
	for k, v := range rec {
		lookup[normalizeHeader(k)] = strings.TrimSpace(v)
	}
	get := func(f Field) string {
		for _, alias := range Aliases[f] {
			if v := lookup[normalizeHeader(alias)]; v != "" {
				return v
			}
		}
		return ""
	}
	row := Row{
		Sheet:     sheet,
		Index:     index,
		Name:      get(FieldName),
		AssetCode: get(FieldAsset),
		Codes:     map[codes.AspectType]string{},
	}
	for _, af := range aspectFields {
		if v := get(af.field); v != "" {
			row.Codes[af.aspect] = v
		}
	}
	return row
}

// Columns maps a header row onto field positions. Unknown headers are
// ignored; a header row naming no known field is an error.
func Columns(header []string) (map[Field]int, error) {
	pos := map[string]int{}
	for i, h := range header {
		pos[normalizeHeader(h)] = i
	}
	out := map[Field]int{}
	for f, aliases := range Aliases {
		for _, a := range aliases {
			if i, ok := pos[normalizeHeader(a)]; ok {
				out[f] = i
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sheets: no known column in header %q", header)
	}
	return out, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// cellString renders a decoded JSON or YAML cell as text.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
