package plan

import (
	"encoding/json"
	"fmt"
)

// exprJSON is the file format of a plan tree. Exactly one payload field is
// set on payload nodes.
type exprJSON struct {
	Op          string      `json:"op"`
	Null        bool        `json:"null,omitempty"`
	Bool        *bool       `json:"bool,omitempty"`
	Int         *int64      `json:"int,omitempty"`
	String      *string     `json:"string,omitempty"`
	AliasToCube AliasToCube `json:"alias_to_cube,omitempty"`
	Members     *Members    `json:"members,omitempty"`
	Column      *Column     `json:"column,omitempty"`
	SQL         *PushedSQL  `json:"sql,omitempty"`
	Children    []*Expr     `json:"children,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Expr) MarshalJSON() ([]byte, error) {
	w := exprJSON{Op: e.Op.String(), Children: e.Children}
	switch v := e.Payload.(type) {
	case nil:
	case Null:
		w.Null = true
	case Bool:
		b := bool(v)
		w.Bool = &b
	case Int:
		n := int64(v)
		w.Int = &n
	case String:
		s := string(v)
		w.String = &s
	case AliasToCube:
		if len(v) == 0 {
			return nil, fmt.Errorf("marshal %s: empty alias binding", e.Op)
		}
		w.AliasToCube = v
	case Members:
		m := v
		if m == nil {
			m = Members{}
		}
		w.Members = &m
	case Column:
		w.Column = &v
	case PushedSQL:
		w.SQL = &v
	default:
		return nil, fmt.Errorf("marshal %s: unsupported payload %T", e.Op, v)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Lists that are serialized
// without children decode as empty lists.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var w exprJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op, ok := Lookup(w.Op)
	if !ok {
		return fmt.Errorf("unknown op %q", w.Op)
	}
	e.Op = op
	e.Children = w.Children
	if op.IsList() && e.Children == nil {
		e.Children = []*Expr{}
	}

	set := 0
	if w.Null {
		e.Payload = Null{}
		set++
	}
	if w.Bool != nil {
		e.Payload = Bool(*w.Bool)
		set++
	}
	if w.Int != nil {
		e.Payload = Int(*w.Int)
		set++
	}
	if w.String != nil {
		e.Payload = String(*w.String)
		set++
	}
	if w.AliasToCube != nil {
		e.Payload = w.AliasToCube
		set++
	}
	if w.Members != nil {
		e.Payload = *w.Members
		set++
	}
	if w.Column != nil {
		e.Payload = *w.Column
		set++
	}
	if w.SQL != nil {
		e.Payload = *w.SQL
		set++
	}
	if set > 1 {
		return fmt.Errorf("%s: more than one payload field", w.Op)
	}
	return nil
}

// ParseJSON decodes and validates an upstream plan.
func ParseJSON(data []byte) (*Expr, error) {
	var e Expr
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := Validate(&e); err != nil {
		return nil, err
	}
	return &e, nil
}
