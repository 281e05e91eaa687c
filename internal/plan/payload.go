package plan

import (
	"slices"
	"strconv"
	"strings"
)

// Payload is the scalar value carried by leaf nodes. The set of
// implementations is sealed.
type Payload interface {
	payload()
	// AppendKey appends an unambiguous encoding used for hash-consing.
	AppendKey(dst []byte) []byte
	String() string
}

// Null is the absent value: no alias, no limit.
type Null struct{}

// Bool is a flag value.
type Bool bool

// Int is an integer value. Floats never appear in a plan.
type Int int64

// String is a text value: function names, aliases, operators, literals.
type String string

// AliasCube binds one relation alias to a cube name.
type AliasCube struct {
	Alias string `json:"alias"`
	Cube  string `json:"cube"`
}

// AliasToCube is the ordered alias binding list of a scan.
type AliasToCube []AliasCube

// Members is the ordered list of semantic members a scan may reference.
type Members []string

// Column references a column of a relation alias.
type Column struct {
	Relation string `json:"relation,omitempty"`
	Name     string `json:"name"`
}

// PushedSQL is the payload of an SQLScan: the rendered query and the data
// source it must be sent to.
type PushedSQL struct {
	DataSource  string      `json:"data_source"`
	SQL         string      `json:"sql"`
	AliasToCube AliasToCube `json:"alias_to_cube"`
}

func (Null) payload()        {}
func (Bool) payload()        {}
func (Int) payload()         {}
func (String) payload()      {}
func (AliasToCube) payload() {}
func (Members) payload()     {}
func (Column) payload()      {}
func (PushedSQL) payload()   {}

func appendStr(dst []byte, s string) []byte {
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, ':')
	return append(dst, s...)
}

func (Null) AppendKey(dst []byte) []byte { return append(dst, 'n') }

func (b Bool) AppendKey(dst []byte) []byte {
	if b {
		return append(dst, 'b', '1')
	}
	return append(dst, 'b', '0')
}

func (i Int) AppendKey(dst []byte) []byte {
	dst = append(dst, 'i')
	return strconv.AppendInt(dst, int64(i), 10)
}

func (s String) AppendKey(dst []byte) []byte {
	return appendStr(append(dst, 's'), string(s))
}

func (a AliasToCube) AppendKey(dst []byte) []byte {
	dst = append(dst, 'a')
	dst = strconv.AppendInt(dst, int64(len(a)), 10)
	for _, ac := range a {
		dst = appendStr(dst, ac.Alias)
		dst = appendStr(dst, ac.Cube)
	}
	return dst
}

func (m Members) AppendKey(dst []byte) []byte {
	dst = append(dst, 'm')
	dst = strconv.AppendInt(dst, int64(len(m)), 10)
	for _, name := range m {
		dst = appendStr(dst, name)
	}
	return dst
}

func (c Column) AppendKey(dst []byte) []byte {
	dst = append(dst, 'c')
	dst = appendStr(dst, c.Relation)
	return appendStr(dst, c.Name)
}

func (q PushedSQL) AppendKey(dst []byte) []byte {
	dst = append(dst, 'q')
	dst = appendStr(dst, q.DataSource)
	dst = appendStr(dst, q.SQL)
	return q.AliasToCube.AppendKey(dst)
}

func (Null) String() string { return "null" }

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

func (s String) String() string { return strconv.Quote(string(s)) }

func (a AliasToCube) String() string {
	parts := make([]string, len(a))
	for i, ac := range a {
		parts[i] = ac.Alias + "=" + ac.Cube
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (m Members) String() string { return "[" + strings.Join(m, ",") + "]" }

func (c Column) String() string {
	if c.Relation == "" {
		return c.Name
	}
	return c.Relation + "." + c.Name
}

func (q PushedSQL) String() string { return q.DataSource + ": " + q.SQL }

// PayloadEqual reports whether two payloads are identical values.
func PayloadEqual(a, b Payload) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case AliasToCube:
		bv, ok := b.(AliasToCube)
		return ok && slices.Equal(av, bv)
	case Members:
		bv, ok := b.(Members)
		return ok && slices.Equal(av, bv)
	case Column:
		bv, ok := b.(Column)
		return ok && av == bv
	case PushedSQL:
		bv, ok := b.(PushedSQL)
		return ok && av.DataSource == bv.DataSource && av.SQL == bv.SQL &&
			slices.Equal(av.AliasToCube, bv.AliasToCube)
	default:
		return false
	}
}

// Cubes returns the distinct cube names in binding order.
func (a AliasToCube) Cubes() []string {
	out := make([]string, 0, len(a))
	for _, ac := range a {
		if !slices.Contains(out, ac.Cube) {
			out = append(out, ac.Cube)
		}
	}
	return out
}

// CubeFor returns the cube bound to alias. An empty alias resolves when the
// binding has exactly one entry.
func (a AliasToCube) CubeFor(alias string) (string, bool) {
	if alias == "" {
		if len(a) == 1 {
			return a[0].Cube, true
		}
		return "", false
	}
	for _, ac := range a {
		if ac.Alias == alias {
			return ac.Cube, true
		}
	}
	return "", false
}
