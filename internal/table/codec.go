package table

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Record magic values.
const (
	tableMagic = "TWTB"
	locMagic   = "TWLC"
)

// Codec errors.
var (
	ErrInvalidMagic = errors.New("invalid record magic")
	ErrTruncated    = errors.New("record truncated")
	errCellType     = errors.New("cell does not match column type")
)

// IsTableData reports whether data looks like an encoded relational table.
func IsTableData(data []byte) bool {
	return bytes.HasPrefix(data, []byte(tableMagic))
}

// IsLocData reports whether data looks like an encoded localization table.
func IsLocData(data []byte) bool {
	return bytes.HasPrefix(data, []byte(locMagic))
}

// Encode serializes a table record:
//
//	magic "TWTB" | u32 version | u32 row count | cells...
//
// Cells are little-endian: bool as u8, int as i64, float as f64 bits, string
// as u32 length + UTF-8 bytes.
func Encode(t *Table) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(tableMagic)
	writeU32(&buf, uint32(t.Definition.Version)) //nolint:gosec // versions are small
	writeU32(&buf, uint32(len(t.Rows)))          //nolint:gosec // row counts fit u32

	for rowIdx, row := range t.Rows {
		if len(row) != len(t.Definition.Columns) {
			return nil, fmt.Errorf("encode %s row %d: %d cells, want %d", t.Name, rowIdx, len(row), len(t.Definition.Columns))
		}

		for colIdx, column := range t.Definition.Columns {
			err := writeCell(&buf, column.Type, row[colIdx])
			if err != nil {
				return nil, fmt.Errorf("encode %s row %d column %s: %w", t.Name, rowIdx, column.Name, err)
			}
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a table record. The table type name comes from the record
// path; the version stored in the record selects the schema definition.
func Decode(name string, data []byte, schema *Schema) (*Table, error) {
	r := bytes.NewReader(data)

	err := readMagic(r, tableMagic)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	version, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: version: %w", name, err)
	}

	def, err := schema.Definition(name, int(version))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	count, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: row count: %w", name, err)
	}

	t := &Table{Name: name, Definition: def, Rows: make([]Row, 0, min(int(count), r.Len()))}

	for rowIdx := range int(count) {
		row := make(Row, len(def.Columns))

		for colIdx, column := range def.Columns {
			row[colIdx], err = readCell(r, column.Type)
			if err != nil {
				return nil, fmt.Errorf("decode %s row %d column %s: %w", name, rowIdx, column.Name, err)
			}
		}

		t.Rows = append(t.Rows, row)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("decode %s: %d trailing bytes", name, r.Len())
	}

	return t, nil
}

// EncodeLoc serializes a localization table:
//
//	magic "TWLC" | u32 row count | (key string, text string, tooltip u8)...
func EncodeLoc(loc *Loc) []byte {
	var buf bytes.Buffer

	buf.WriteString(locMagic)
	writeU32(&buf, uint32(len(loc.Rows))) //nolint:gosec // row counts fit u32

	for _, row := range loc.Rows {
		writeString(&buf, row.Key)
		writeString(&buf, row.Text)
		writeBool(&buf, row.Tooltip)
	}

	return buf.Bytes()
}

// DecodeLoc parses a localization table record.
func DecodeLoc(data []byte) (*Loc, error) {
	r := bytes.NewReader(data)

	err := readMagic(r, locMagic)
	if err != nil {
		return nil, fmt.Errorf("decode loc: %w", err)
	}

	count, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("decode loc: row count: %w", err)
	}

	loc := &Loc{Rows: make([]LocRow, 0, min(int(count), r.Len()))}

	for i := range int(count) {
		key, keyErr := readString(r)
		text, textErr := readString(r)
		tooltip, tooltipErr := readBool(r)

		err = errors.Join(keyErr, textErr, tooltipErr)
		if err != nil {
			return nil, fmt.Errorf("decode loc row %d: %w", i, err)
		}

		loc.Rows = append(loc.Rows, LocRow{Key: key, Text: text, Tooltip: tooltip})
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("decode loc: %d trailing bytes", r.Len())
	}

	return loc, nil
}

func writeCell(buf *bytes.Buffer, typ ColumnType, cell any) error {
	switch typ {
	case TypeBool:
		v, ok := cell.(bool)
		if !ok {
			return fmt.Errorf("%w: %T is not bool", errCellType, cell)
		}

		writeBool(buf, v)
	case TypeInt:
		v, ok := cell.(int64)
		if !ok {
			return fmt.Errorf("%w: %T is not int64", errCellType, cell)
		}

		_ = binary.Write(buf, binary.LittleEndian, v)
	case TypeFloat:
		v, ok := cell.(float64)
		if !ok {
			return fmt.Errorf("%w: %T is not float64", errCellType, cell)
		}

		_ = binary.Write(buf, binary.LittleEndian, math.Float64bits(v))
	case TypeString:
		v, ok := cell.(string)
		if !ok {
			return fmt.Errorf("%w: %T is not string", errCellType, cell)
		}

		writeString(buf, v)
	default:
		return fmt.Errorf("%w: unknown column type %q", errCellType, typ)
	}

	return nil
}

func readCell(r *bytes.Reader, typ ColumnType) (any, error) {
	switch typ {
	case TypeBool:
		return readBool(r)
	case TypeInt:
		var v int64

		err := binary.Read(r, binary.LittleEndian, &v)
		if err != nil {
			return nil, truncated(err)
		}

		return v, nil
	case TypeFloat:
		var bits uint64

		err := binary.Read(r, binary.LittleEndian, &bits)
		if err != nil {
			return nil, truncated(err)
		}

		return math.Float64frombits(bits), nil
	case TypeString:
		return readString(r)
	default:
		return nil, fmt.Errorf("%w: unknown column type %q", errCellType, typ)
	}
}

func readMagic(r *bytes.Reader, magic string) error {
	got := make([]byte, len(magic))

	_, err := io.ReadFull(r, got)
	if err != nil || string(got) != magic {
		return fmt.Errorf("%w: want %q", ErrInvalidMagic, magic)
	}

	return nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var v uint32

	err := binary.Read(r, binary.LittleEndian, &v)
	if err != nil {
		return 0, truncated(err)
	}

	return v, nil
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, truncated(err)
	}

	return b != 0, nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s))) //nolint:gosec // strings are far below 4GiB
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}

	if int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("%w: string of %d bytes, %d left", ErrTruncated, n, r.Len())
	}

	data := make([]byte, n)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return "", truncated(err)
	}

	return string(data), nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}

	return err
}
