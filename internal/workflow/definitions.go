// Package workflow holds the static, per-letter-type configuration of the
// approval pipeline: the ordered stages, the role responsible for each stage,
// and the signatories required on the finished document.
package workflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownLetterType = errors.New("workflow: unknown letter type")
	ErrUnknownStage      = errors.New("workflow: stage not in definition")
)

// Stage is one position in a letter type's approval pipeline.
type Stage struct {
	Name string
	Role string
}

// Definition is the static workflow configuration for one letter type.
type Definition struct {
	LetterType   string
	NumberPrefix string
	Issuer       string
	Stages       []Stage
	Signatories  []string
	Estimate     time.Duration
}

// FirstStage returns the stage a freshly submitted request is assigned to.
func (d Definition) FirstStage() Stage {
	return d.Stages[0]
}

// FinalStage returns the last approval stage, the only one Complete is legal from.
func (d Definition) FinalStage() Stage {
	return d.Stages[len(d.Stages)-1]
}

// StageIndex returns the position of the named stage, or ErrUnknownStage.
func (d Definition) StageIndex(name string) (int, error) {
	for i, s := range d.Stages {
		if s.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// RequiresSignatory reports whether role is one of the letter type's
// required signatories.
func (d Definition) RequiresSignatory(role string) bool {
	for _, r := range d.Signatories {
		if r == role {
			return true
		}
	}
	return false
}

// Registry maps letter types to their definitions.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry validates and indexes the given definitions. Every definition
// must carry at least one stage and one required signatory.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.LetterType == "" {
			return nil, errors.New("workflow: definition without letter type")
		}
		if len(d.Stages) == 0 {
			return nil, fmt.Errorf("workflow: %s has no stages", d.LetterType)
		}
		if len(d.Signatories) == 0 {
			return nil, fmt.Errorf("workflow: %s has no required signatories", d.LetterType)
		}
		seen := make(map[string]bool, len(d.Stages))
		for _, s := range d.Stages {
			if s.Name == "" || s.Role == "" {
				return nil, fmt.Errorf("workflow: %s has an incomplete stage", d.LetterType)
			}
			if seen[s.Name] {
				return nil, fmt.Errorf("workflow: %s repeats stage %q", d.LetterType, s.Name)
			}
			seen[s.Name] = true
		}
		if _, dup := r.defs[d.LetterType]; dup {
			return nil, fmt.Errorf("workflow: duplicate definition for %s", d.LetterType)
		}
		r.defs[d.LetterType] = d
	}
	return r, nil
}

// Definition looks up the configuration for a letter type.
func (r *Registry) Definition(letterType string) (Definition, error) {
	d, ok := r.defs[letterType]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownLetterType, letterType)
	}
	return d, nil
}

// Defaults returns the letter types the faculty portal ships with.
func Defaults() []Definition {
	return []Definition{
		{
			LetterType:   "surat_keterangan_aktif_kuliah",
			NumberPrefix: "SKA",
			Issuer:       "Fakultas Teknik",
			Stages: []Stage{
				{Name: "review_tu", Role: "staff_tu"},
				{Name: "persetujuan_wd1", Role: "wd1"},
			},
			Signatories: []string{"wd1"},
			Estimate:    3 * 24 * time.Hour,
		},
		{
			LetterType:   "surat_keterangan_lulus",
			NumberPrefix: "SKL",
			Issuer:       "Fakultas Teknik",
			Stages: []Stage{
				{Name: "review_tu", Role: "staff_tu"},
				{Name: "verifikasi_prodi", Role: "kaprodi"},
				{Name: "persetujuan_wd1", Role: "wd1"},
			},
			Signatories: []string{"kaprodi", "wd1"},
			Estimate:    5 * 24 * time.Hour,
		},
		{
			LetterType:   "surat_rekomendasi",
			NumberPrefix: "SR",
			Issuer:       "Fakultas Teknik",
			Stages: []Stage{
				{Name: "review_tu", Role: "staff_tu"},
				{Name: "review_dosen_wali", Role: "dosen_wali"},
				{Name: "persetujuan_wd1", Role: "wd1"},
			},
			Signatories: []string{"dosen_wali", "wd1"},
			Estimate:    7 * 24 * time.Hour,
		},
	}
}
