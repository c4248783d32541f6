package canonical

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func sampleDocument() Document {
	issued := time.Date(2026, time.August, 10, 9, 30, 0, 0, time.UTC)
	return Document{
		LetterNumber: "SKA/001/VIII/2026",
		Issuer:       "Fakultas Teknik",
		SubjectID:    "105841102422",
		SubjectName:  "Andi Pratama",
		IssuedAt:     issued,
		Status:       "completed",
		Signatories: []Signatory{
			{Name: "Dr. Rahmat Hidayat", Role: "wd1", SignedAt: issued.Add(time.Hour)},
		},
	}
}

func TestMarshalDeterministic(t *testing.T) {
	doc := sampleDocument()
	a, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("repeated Marshal of the same document produced different bytes")
	}
}

func TestMarshalInjective(t *testing.T) {
	base := sampleDocument()
	baseline, err := Marshal(base)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	mutations := map[string]func(*Document){
		"letter_number": func(d *Document) { d.LetterNumber = "SKA/002/VIII/2026" },
		"issuer":        func(d *Document) { d.Issuer = "Fakultas Hukum" },
		"subject_id":    func(d *Document) { d.SubjectID = "105841102423" },
		"subject_name":  func(d *Document) { d.SubjectName = "Andi Pratamaa" },
		"issued_at":     func(d *Document) { d.IssuedAt = d.IssuedAt.Add(time.Second) },
		"status":        func(d *Document) { d.Status = "revoked" },
		"signatory_name": func(d *Document) {
			d.Signatories[0].Name = "Dr. Rahmat Hidayatt"
		},
		"signatory_role": func(d *Document) { d.Signatories[0].Role = "wd2" },
		"signatory_time": func(d *Document) {
			d.Signatories[0].SignedAt = d.Signatories[0].SignedAt.Add(time.Nanosecond)
		},
		"extra_signatory": func(d *Document) {
			d.Signatories = append(d.Signatories, Signatory{
				Name: "Prof. Sari", Role: "kaprodi", SignedAt: d.IssuedAt,
			})
		},
		"no_signatories": func(d *Document) { d.Signatories = nil },
	}

	for name, mutate := range mutations {
		doc := sampleDocument()
		mutate(&doc)
		got, err := Marshal(doc)
		if err != nil {
			t.Fatalf("%s: Marshal: %v", name, err)
		}
		if bytes.Equal(got, baseline) {
			t.Errorf("%s: mutated document canonicalized to identical bytes", name)
		}
	}
}

// Two fields with shifted content must not collide. This is the classic
// concatenation ambiguity ("ab"+"c" vs "a"+"bc") that length prefixes exist
// to prevent.
func TestMarshalNoBoundaryAmbiguity(t *testing.T) {
	a := sampleDocument()
	a.SubjectID = "105841"
	a.SubjectName = "102422Andi"

	b := sampleDocument()
	b.SubjectID = "105841102422"
	b.SubjectName = "Andi"

	ba, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	bb, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if bytes.Equal(ba, bb) {
		t.Error("shifted field boundary produced identical canonical bytes")
	}
}

func TestMarshalRequiredFields(t *testing.T) {
	cases := map[string]func(*Document){
		"letter_number":  func(d *Document) { d.LetterNumber = "" },
		"issuer":         func(d *Document) { d.Issuer = "" },
		"subject_id":     func(d *Document) { d.SubjectID = "" },
		"status":         func(d *Document) { d.Status = "" },
		"issued_at":      func(d *Document) { d.IssuedAt = time.Time{} },
		"signatory_name": func(d *Document) { d.Signatories[0].Name = "" },
		"signatory_time": func(d *Document) { d.Signatories[0].SignedAt = time.Time{} },
	}
	for name, mutate := range cases {
		doc := sampleDocument()
		mutate(&doc)
		if _, err := Marshal(doc); !errors.Is(err, ErrMissingField) {
			t.Errorf("%s: got %v, want ErrMissingField", name, err)
		}
	}

	doc := sampleDocument()
	doc.IssuedAt = time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := Marshal(doc); !errors.Is(err, ErrUnrepresentable) {
		t.Errorf("out-of-range year: got %v, want ErrUnrepresentable", err)
	}
}

func TestRoundTrip(t *testing.T) {
	doc := sampleDocument()
	buf, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.LetterNumber != doc.LetterNumber || got.Status != doc.Status ||
		got.SubjectID != doc.SubjectID || got.SubjectName != doc.SubjectName ||
		got.Issuer != doc.Issuer {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.IssuedAt.Equal(doc.IssuedAt) {
		t.Errorf("issued_at mismatch: %v vs %v", got.IssuedAt, doc.IssuedAt)
	}
	if len(got.Signatories) != 1 ||
		got.Signatories[0].Name != doc.Signatories[0].Name ||
		got.Signatories[0].Role != doc.Signatories[0].Role ||
		!got.Signatories[0].SignedAt.Equal(doc.Signatories[0].SignedAt) {
		t.Errorf("signatory mismatch: %+v", got.Signatories)
	}
}

func TestUnmarshalStrict(t *testing.T) {
	doc := sampleDocument()
	buf, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if _, err := Unmarshal(nil); !errors.Is(err, ErrMalformed) {
		t.Error("empty input should be malformed")
	}
	if _, err := Unmarshal([]byte{version + 1}); !errors.Is(err, ErrMalformed) {
		t.Error("unknown version should be malformed")
	}
	if _, err := Unmarshal(buf[:len(buf)/2]); !errors.Is(err, ErrMalformed) {
		t.Error("truncated input should be malformed")
	}
	if _, err := Unmarshal(append(append([]byte{}, buf...), 0x00)); !errors.Is(err, ErrMalformed) {
		t.Error("trailing bytes should be malformed")
	}
}
