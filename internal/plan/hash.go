package plan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content-addressed identity.
const (
	DomainPlan   = "cube/plan/v1"
	DomainOutput = "cube/output/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalCanonical returns the canonical bytes of a plan: strings NFC
// normalized, no HTML escaping, no trailing newline.
func MarshalCanonical(e *Expr) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("canonical: nil plan")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized(e)); err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Fingerprint is the content address of a plan.
func Fingerprint(e *Expr) (string, error) {
	return fingerprint(DomainPlan, e)
}

// OutputFingerprint is the content address of a compilation result plan.
func OutputFingerprint(e *Expr) (string, error) {
	return fingerprint(DomainOutput, e)
}

// MustFingerprint panics if the plan cannot be marshaled. For tests.
func MustFingerprint(e *Expr) string {
	h, err := Fingerprint(e)
	if err != nil {
		panic(err)
	}
	return h
}

func fingerprint(domain string, e *Expr) (string, error) {
	data, err := MarshalCanonical(e)
	if err != nil {
		return "", err
	}
	return hashWithDomain(domain, data), nil
}

func normalized(e *Expr) *Expr {
	out := e.Clone()
	out.Walk(func(n *Expr) bool {
		switch v := n.Payload.(type) {
		case String:
			n.Payload = String(norm.NFC.String(string(v)))
		case Column:
			n.Payload = Column{Relation: norm.NFC.String(v.Relation), Name: norm.NFC.String(v.Name)}
		case PushedSQL:
			v.SQL = norm.NFC.String(v.SQL)
			n.Payload = v
		}
		return true
	})
	return out
}
