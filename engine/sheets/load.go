package sheets

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files of an unknown extension.
var ErrUnsupportedFormat = errors.New("sheets: unsupported file format")

// Sheet is a named table of header->value records.
type Sheet struct {
	Name    string           `json:"name" yaml:"name"`
	Records []map[string]any `json:"rows" yaml:"rows"`
}

// Workbook is the document form accepted by the JSON and YAML loaders:
//
//	{"sheets": [{"name": "S1", "rows": [{"名称": "...", "电源功能": "==="}]}]}
//
// A map of sheet name to rows is accepted too; its sheets load in name order.
type Workbook struct {
	Sheets []Sheet
}

type workbookList struct {
	Sheets []Sheet `json:"sheets" yaml:"sheets"`
}

type workbookMap struct {
	Sheets map[string][]map[string]any `json:"sheets" yaml:"sheets"`
}

func (w *Workbook) fromMap(m workbookMap) {
	names := make([]string, 0, len(m.Sheets))
	for n := range m.Sheets {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		w.Sheets = append(w.Sheets, Sheet{Name: n, Records: m.Sheets[n]})
	}
}

// Rows flattens the workbook into rows, dropping empty ones.
func (w Workbook) Rows() []Row {
	var out []Row
	for _, s := range w.Sheets {
		for i, rec := range s.Records {
			strs := make(map[string]string, len(rec))
			for k, v := range rec {
				strs[k] = cellString(v)
			}
			if row := FromRecord(s.Name, i, strs); !row.Empty() {
				out = append(out, row)
			}
		}
	}
	return out
}

// DecodeJSON reads a workbook document.
func DecodeJSON(r io.Reader) (Workbook, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Workbook{}, err
	}
	var list workbookList
	if err := json.Unmarshal(data, &list); err == nil {
		return Workbook{Sheets: list.Sheets}, nil
	}
	var m workbookMap
	if err := json.Unmarshal(data, &m); err != nil {
		return Workbook{}, fmt.Errorf("sheets: decode json: %w", err)
	}
	var w Workbook
	w.fromMap(m)
	return w, nil
}

// DecodeYAML reads a workbook document written as YAML.
func DecodeYAML(r io.Reader) (Workbook, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Workbook{}, err
	}
	var list workbookList
	if err := yaml.Unmarshal(data, &list); err == nil {
		return Workbook{Sheets: list.Sheets}, nil
	}
	var m workbookMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Workbook{}, fmt.Errorf("sheets: decode yaml: %w", err)
	}
	var w Workbook
	w.fromMap(m)
	return w, nil
}

// ReadCSV reads one sheet from CSV with a header row.
func ReadCSV(r io.Reader, sheet string) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("sheets: read header of %s: %w", sheet, err)
	}
	if _, err := Columns(header); err != nil {
		return nil, err
	}

	var out []Row
	for idx := 0; ; idx++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheets: %s row %d: %w", sheet, idx, err)
		}
		if row := tableRow(sheet, idx, header, rec); !row.Empty() {
			out = append(out, row)
		}
	}
	return out, nil
}

// tableRow pairs a positional record with its header. Short records leave
// the trailing columns empty.
func tableRow(sheet string, idx int, header, rec []string) Row {
	cells := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(rec) {
			cells[h] = rec[i]
		}
	}
	return FromRecord(sheet, idx, cells)
}

// LoadFiles loads every path. CSV files become one sheet named after the
// file stem; Excel, JSON and YAML files carry their own sheets.
func LoadFiles(paths ...string) ([]Row, error) {
	var out []Row
	for _, p := range paths {
		rows, err := loadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func loadFile(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		return ReadCSV(bytes.NewReader(data), strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	case ".xlsx", ".xlsm":
		return ReadXLSX(bytes.NewReader(data))
	case ".json":
		w, err := DecodeJSON(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return w.Rows(), nil
	case ".yaml", ".yml":
		w, err := DecodeYAML(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return w.Rows(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}
