// Package rows serializes database/sql result rows as zerialize maps.
//
// A row becomes a map keyed by column name in select order. SQL NULL is
// null; integers, floats, booleans and text map to the matching value
// kinds; byte columns are binary unless the column is declared as text.
// Every other driver value (times, decimals, driver.Valuer types) is
// written as its text form.
//
//	rs, _ := db.QueryContext(ctx, "SELECT id, name FROM agents")
//	defer rs.Close()
//	out, err := rows.EncodeAll(msgpack.Protocol, rs)
package rows

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/Neumenon/zerialize/zerialize"
)

// Column describes one result column.
type Column struct {
	Name     string
	DBType   string // Driver type name, upper case; may be empty
	Nullable bool
}

// textual reports whether byte values of the column are text.
func (c Column) textual() bool {
	t := c.DBType
	return strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT") ||
		strings.Contains(t, "CLOB") || t == "JSON" || t == "UUID"
}

// Row is one scanned row. It is Serializable.
type Row struct {
	Columns []Column
	Values  []any
}

// Serialize writes the row as a map. Duplicate column names fail with
// ErrDuplicateKey; alias them in the query.
func (r Row) Serialize(w zerialize.Writer) error {
	if err := w.BeginMap(len(r.Columns)); err != nil {
		return err
	}
	for i, c := range r.Columns {
		if err := w.Key(c.Name); err != nil {
			return err
		}
		if err := writeValue(w, c, r.Values[i]); err != nil {
			return err
		}
	}
	return w.EndMap()
}

// Scanner reads rows from one result set, reusing its scan buffers.
type Scanner struct {
	rs   *sql.Rows
	cols []Column
	dest []any
	ptrs []any
}

// NewScanner reads the column metadata of rs.
func NewScanner(rs *sql.Rows) (*Scanner, error) {
	types, err := rs.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("rows: column types: %w", err)
	}
	s := &Scanner{
		rs:   rs,
		cols: make([]Column, len(types)),
		dest: make([]any, len(types)),
		ptrs: make([]any, len(types)),
	}
	for i, ct := range types {
		nullable, _ := ct.Nullable()
		s.cols[i] = Column{
			Name:     ct.Name(),
			DBType:   strings.ToUpper(ct.DatabaseTypeName()),
			Nullable: nullable,
		}
		s.ptrs[i] = &s.dest[i]
	}
	return s, nil
}

// Columns returns the result columns in select order.
func (s *Scanner) Columns() []Column { return s.cols }

// Row scans the current row. The caller advances with rs.Next. Byte
// values are copied, so the row outlives the next scan.
func (s *Scanner) Row() (Row, error) {
	if err := s.rs.Scan(s.ptrs...); err != nil {
		return Row{}, fmt.Errorf("rows: scan: %w", err)
	}
	vals := make([]any, len(s.dest))
	for i, v := range s.dest {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		vals[i] = v
	}
	return Row{Columns: s.cols, Values: vals}, nil
}

// Encode serializes the current row of rs with p.
func Encode(p zerialize.Protocol, rs *sql.Rows) ([]byte, error) {
	s, err := NewScanner(rs)
	if err != nil {
		return nil, err
	}
	row, err := s.Row()
	if err != nil {
		return nil, err
	}
	return zerialize.Serialize(p, row)
}

// EncodeAll consumes rs and serializes its rows as an array of maps.
// Rows are written as they are scanned; no intermediate tree is built.
func EncodeAll(p zerialize.Protocol, rs *sql.Rows) ([]byte, error) {
	s, err := NewScanner(rs)
	if err != nil {
		return nil, err
	}
	return zerialize.Serialize(p, zerialize.SerializerFunc(func(w zerialize.Writer) error {
		if err := w.BeginArray(0); err != nil {
			return err
		}
		for rs.Next() {
			row, err := s.Row()
			if err != nil {
				return err
			}
			if err := row.Serialize(w); err != nil {
				return err
			}
		}
		if err := rs.Err(); err != nil {
			return fmt.Errorf("rows: next: %w", err)
		}
		return w.EndArray()
	}))
}

func writeValue(w zerialize.Writer, c Column, v any) error {
	if vr, ok := v.(driver.Valuer); ok {
		dv, err := vr.Value()
		if err != nil {
			return zerialize.Encodef("rows: value", zerialize.ErrUnsupportedValue, "column %q: %v", c.Name, err)
		}
		if _, again := dv.(driver.Valuer); !again {
			return writeValue(w, c, dv)
		}
		v = dv
	}
	switch x := v.(type) {
	case nil:
		return w.Null()
	case bool:
		return w.Bool(x)
	case int64:
		return w.Int64(x)
	case int32:
		return w.Int64(int64(x))
	case int:
		return w.Int64(int64(x))
	case uint64:
		return w.Uint64(x)
	case float64:
		return w.Float64(x)
	case float32:
		return w.Float64(float64(x))
	case string:
		return w.String(x)
	case []byte:
		if c.textual() {
			return w.String(string(x))
		}
		return w.Binary(x)
	case time.Time:
		return w.String(x.Format(time.RFC3339Nano))
	}
	return w.String(fmt.Sprint(v))
}
