// Package models defines the language sets the recognition cascade tries
// and the named profiles that order them.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Variant selects a language data flavour.
type Variant string

const (
	VariantFast     Variant = "fast"
	VariantStandard Variant = "standard"
	VariantBest     Variant = "best"
)

// Page segmentation modes used by the built-in sets.
const (
	PSMAuto        = 3
	PSMSingleBlock = 6
)

// OEMLSTMOnly selects the LSTM recognizer.
const OEMLSTMOnly = 1

// AssetExt is the language data file extension.
const AssetExt = ".traineddata"

// DefaultAssetBases are the public language data repositories per variant.
var DefaultAssetBases = map[Variant]string{
	VariantFast:     "https://raw.githubusercontent.com/tesseract-ocr/tessdata_fast/main",
	VariantStandard: "https://raw.githubusercontent.com/tesseract-ocr/tessdata/main",
	VariantBest:     "https://raw.githubusercontent.com/tesseract-ocr/tessdata_best/main",
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantFast, VariantStandard, VariantBest:
		return true
	}
	return false
}

// LanguageSet is one recognition strategy: the languages loaded together
// and how the engine is configured for them.
type LanguageSet struct {
	ID          string   `yaml:"id" json:"id"`
	Languages   []string `yaml:"languages" json:"languages"`
	Variant     Variant  `yaml:"variant" json:"variant"`
	PageSegMode int      `yaml:"page_seg_mode" json:"page_seg_mode"`
	EngineMode  int      `yaml:"engine_mode" json:"engine_mode"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Model returns the engine language identifier, e.g. "chi_sim+eng".
func (s LanguageSet) Model() string {
	return strings.Join(s.Languages, "+")
}

// Assets lists the language data files the set needs.
func (s LanguageSet) Assets() []Asset {
	out := make([]Asset, 0, len(s.Languages))
	for _, lang := range s.Languages {
		out = append(out, Asset{Language: lang, Variant: s.Variant})
	}
	return out
}

// Validate checks the set definition.
func (s LanguageSet) Validate() error {
	if s.ID == "" {
		return errors.New("language set id is required")
	}
	if len(s.Languages) == 0 {
		return fmt.Errorf("language set %s: at least one language is required", s.ID)
	}
	for _, lang := range s.Languages {
		if !validLanguageCode(lang) {
			return fmt.Errorf("language set %s: invalid language code %q", s.ID, lang)
		}
	}
	if !s.Variant.Valid() {
		return fmt.Errorf("language set %s: unknown variant %q", s.ID, s.Variant)
	}
	if s.PageSegMode < 0 || s.PageSegMode > 13 {
		return fmt.Errorf("language set %s: page_seg_mode must be between 0 and 13", s.ID)
	}
	if s.EngineMode < 0 || s.EngineMode > 3 {
		return fmt.Errorf("language set %s: engine_mode must be between 0 and 3", s.ID)
	}
	return nil
}

func validLanguageCode(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

// Asset is one language data file.
type Asset struct {
	Language string
	Variant  Variant
}

// FileName returns e.g. "eng.traineddata".
func (a Asset) FileName() string {
	return a.Language + AssetExt
}

// Key identifies the asset across variants, e.g. "fast/eng.traineddata".
func (a Asset) Key() string {
	return string(a.Variant) + "/" + a.FileName()
}

// URL joins the asset onto base.
func (a Asset) URL(base string) string {
	return strings.TrimRight(base, "/") + "/" + a.FileName()
}
