package plan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MalformedPlanError reports a plan that violates the shape rules of the
// language: wrong arity, a payload of the wrong type, a child of the wrong
// kind. It is a contract violation by the caller and fails the compilation.
type MalformedPlanError struct {
	// Path locates the offending node as child indexes from the root,
	// e.g. "root/0/2".
	Path    string
	Op      Op
	Message string
}

func (e *MalformedPlanError) Error() string {
	return fmt.Sprintf("malformed plan at %s (%s): %s", e.Path, e.Op, e.Message)
}

// IsMalformedPlan reports whether err is a *MalformedPlanError.
func IsMalformedPlan(err error) bool {
	var me *MalformedPlanError
	return errors.As(err, &me)
}

// Validate checks that e is a well-formed upstream plan. Wrappers, wrapped
// selects and replacers are rejected; an SQLScan is accepted as an already
// pushed region.
func Validate(e *Expr) error {
	return validate(e, "root", true)
}

// ValidateOutput checks a plan produced by extraction. It accepts the rewrite
// products that may legitimately survive extraction but never replacers.
func ValidateOutput(e *Expr) error {
	return validate(e, "root", false)
}

func validate(e *Expr, path string, upstream bool) error {
	if e == nil {
		return &MalformedPlanError{Path: path, Message: "nil node"}
	}
	if e.Op == OpInvalid || e.Op >= NumOps {
		return &MalformedPlanError{Path: path, Op: e.Op, Message: "unknown node kind"}
	}
	info := e.Op.Info()
	if upstream && !info.Upstream {
		return &MalformedPlanError{Path: path, Op: e.Op, Message: "node kind is not accepted in an input plan"}
	}
	if info.Kind == KindReplacer {
		return &MalformedPlanError{Path: path, Op: e.Op, Message: "replacer outside an e-graph"}
	}

	if info.HasPayload {
		if len(e.Children) != 0 {
			return &MalformedPlanError{Path: path, Op: e.Op, Message: "payload node with children"}
		}
		if err := checkPayload(e.Op, e.Payload); err != nil {
			return &MalformedPlanError{Path: path, Op: e.Op, Message: err.Error()}
		}
		return nil
	}
	if e.Payload != nil {
		return &MalformedPlanError{Path: path, Op: e.Op, Message: "unexpected payload " + e.Payload.String()}
	}

	if info.Kind == KindList {
		for i, ch := range e.Children {
			childPath := path + "/" + strconv.Itoa(i)
			if ch == nil {
				return &MalformedPlanError{Path: childPath, Message: "nil list element"}
			}
			if !listElementAllowed(e.Op, ch.Op) {
				return &MalformedPlanError{Path: childPath, Op: ch.Op,
					Message: fmt.Sprintf("%s cannot hold a %s", e.Op, ch.Op.Kind())}
			}
			if err := validate(ch, childPath, upstream); err != nil {
				return err
			}
		}
		return nil
	}

	if len(e.Children) != len(info.Slots) {
		return &MalformedPlanError{Path: path, Op: e.Op,
			Message: fmt.Sprintf("expected %d children, got %d", len(info.Slots), len(e.Children))}
	}
	for i, ch := range e.Children {
		childPath := path + "/" + strconv.Itoa(i)
		if ch == nil {
			return &MalformedPlanError{Path: childPath, Message: "nil child"}
		}
		want := info.SlotOps[i]
		switch info.Slots[i] {
		case SlotPayload:
			if ch.Op != want {
				return &MalformedPlanError{Path: childPath, Op: ch.Op,
					Message: fmt.Sprintf("expected %s leaf", want)}
			}
		case SlotChild:
			if !childAllowed(want, ch.Op) {
				return &MalformedPlanError{Path: childPath, Op: ch.Op,
					Message: fmt.Sprintf("%s cannot hold a %s in child %d, expected %s", e.Op, ch.Op.Kind(), i, want)}
			}
		default:
			return &MalformedPlanError{Path: childPath, Op: e.Op, Message: "unknown slot"}
		}
		if err := validate(ch, childPath, upstream); err != nil {
			return err
		}
	}
	return nil
}

// childAllowed reports whether a child slot naming want accepts op.
func childAllowed(want, op Op) bool {
	switch want {
	case AnyExpr:
		return op.Kind() == KindExpr
	case AnyPlan:
		return op.Kind() == KindPlan
	case OpInvalid:
		return !op.IsLeaf() && !op.IsList()
	default:
		return op == want
	}
}

func listElementAllowed(list, elem Op) bool {
	switch list {
	case OpWrappedSubqueries, OpWrappedJoins:
		return elem.Kind() == KindPlan || elem.Kind() == KindExpr
	default:
		return elem.Kind() == KindExpr
	}
}

func checkPayload(op Op, v Payload) error {
	if v == nil {
		return errors.New("missing payload")
	}
	ok := false
	switch op {
	case OpAliasToCube:
		_, ok = v.(AliasToCube)
	case OpCubeMembers:
		_, ok = v.(Members)
	case OpFlag:
		_, ok = v.(Bool)
	case OpName:
		switch v.(type) {
		case String, Null:
			ok = true
		}
	case OpNumber:
		switch n := v.(type) {
		case Int:
			if n < 0 {
				return fmt.Errorf("negative row count %d", n)
			}
			ok = true
		case Null:
			ok = true
		}
	case OpColumn:
		var col Column
		col, ok = v.(Column)
		if ok && strings.TrimSpace(col.Name) == "" {
			return errors.New("column without a name")
		}
	case OpLiteral:
		switch v.(type) {
		case Null, Bool, Int, String:
			ok = true
		}
	case OpSQLScan:
		_, ok = v.(PushedSQL)
	default:
		return fmt.Errorf("%s has no payload", op)
	}
	if !ok {
		return fmt.Errorf("payload %T not valid for %s", v, op)
	}
	return nil
}
