// Package canonical serializes the verifiable subset of a completed letter
// into a deterministic byte sequence used as the signing input. Fields are
// written in a fixed order with uvarint length prefixes, so two documents
// differing in any verifiable field can never encode to the same bytes.
package canonical

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// version tags the encoding so the scheme can evolve without breaking old tokens.
const version byte = 1

var (
	ErrMissingField    = errors.New("canonical: required field is missing")
	ErrUnrepresentable = errors.New("canonical: field value is unrepresentable")
	ErrMalformed       = errors.New("canonical: malformed encoding")
)

// Signatory is one entry of the ordered signatory list.
type Signatory struct {
	Name     string
	Role     string
	SignedAt time.Time
}

// Document holds the verifiable fields of a completed letter.
type Document struct {
	LetterNumber string
	Issuer       string
	SubjectID    string
	SubjectName  string
	IssuedAt     time.Time
	Status       string
	Signatories  []Signatory
}

func appendField(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendTime(buf []byte, t time.Time) []byte {
	return appendField(buf, t.UTC().Format(time.RFC3339Nano))
}

// Marshal encodes doc into canonical bytes. All scalar fields are required;
// a zero timestamp or an out-of-range year is unrepresentable.
func Marshal(doc Document) ([]byte, error) {
	for name, v := range map[string]string{
		"letter_number": doc.LetterNumber,
		"issuer":        doc.Issuer,
		"subject_id":    doc.SubjectID,
		"subject_name":  doc.SubjectName,
		"status":        doc.Status,
	} {
		if v == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	if err := checkTime("issued_at", doc.IssuedAt); err != nil {
		return nil, err
	}
	for i, s := range doc.Signatories {
		if s.Name == "" || s.Role == "" {
			return nil, fmt.Errorf("%w: signatory %d", ErrMissingField, i)
		}
		if err := checkTime("signed_at", s.SignedAt); err != nil {
			return nil, err
		}
	}

	buf := []byte{version}
	buf = appendField(buf, doc.LetterNumber)
	buf = appendField(buf, doc.Issuer)
	buf = appendField(buf, doc.SubjectID)
	buf = appendField(buf, doc.SubjectName)
	buf = appendTime(buf, doc.IssuedAt)
	buf = appendField(buf, doc.Status)
	buf = binary.AppendUvarint(buf, uint64(len(doc.Signatories)))
	for _, s := range doc.Signatories {
		buf = appendField(buf, s.Name)
		buf = appendField(buf, s.Role)
		buf = appendTime(buf, s.SignedAt)
	}
	return buf, nil
}

func checkTime(name string, t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	if y := t.UTC().Year(); y < 1 || y > 9999 {
		return fmt.Errorf("%w: %s", ErrUnrepresentable, name)
	}
	return nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) field() (string, error) {
	n, width := binary.Uvarint(r.buf[r.off:])
	if width <= 0 {
		return "", ErrMalformed
	}
	r.off += width
	if n > uint64(len(r.buf)-r.off) {
		return "", ErrMalformed
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *reader) time() (time.Time, error) {
	s, err := r.field()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, ErrMalformed
	}
	return t, nil
}

// Unmarshal decodes canonical bytes back into a Document. It is strict:
// truncated input, oversized lengths, and trailing bytes all fail.
func Unmarshal(buf []byte) (Document, error) {
	if len(buf) == 0 || buf[0] != version {
		return Document{}, ErrMalformed
	}
	r := &reader{buf: buf, off: 1}

	var doc Document
	var err error
	if doc.LetterNumber, err = r.field(); err != nil {
		return Document{}, err
	}
	if doc.Issuer, err = r.field(); err != nil {
		return Document{}, err
	}
	if doc.SubjectID, err = r.field(); err != nil {
		return Document{}, err
	}
	if doc.SubjectName, err = r.field(); err != nil {
		return Document{}, err
	}
	if doc.IssuedAt, err = r.time(); err != nil {
		return Document{}, err
	}
	if doc.Status, err = r.field(); err != nil {
		return Document{}, err
	}

	count, width := binary.Uvarint(r.buf[r.off:])
	if width <= 0 || count > uint64(len(r.buf)) {
		return Document{}, ErrMalformed
	}
	r.off += width
	for i := uint64(0); i < count; i++ {
		var s Signatory
		if s.Name, err = r.field(); err != nil {
			return Document{}, err
		}
		if s.Role, err = r.field(); err != nil {
			return Document{}, err
		}
		if s.SignedAt, err = r.time(); err != nil {
			return Document{}, err
		}
		doc.Signatories = append(doc.Signatories, s)
	}
	if r.off != len(buf) {
		return Document{}, ErrMalformed
	}
	return doc, nil
}
