package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

type PreprocessingSettings struct {
	ApplyStopwordsDeletion bool   `json:"apply_stopwords_deletion"`
	ApplyStemming          bool   `json:"apply_stemming"`
	ApplyLemmatization     bool   `json:"apply_lemmatization"`
	SpacyLanguageModel     string `json:"spacy_language_model" validate:"required_if=ApplyLemmatization true"`
}

type VectorizationSettings struct {
	VectorizerType     string `json:"vectorizer_type" validate:"oneof=tfidf spacy"`
	SpacyLanguageModel string `json:"spacy_language_model" validate:"required_if=VectorizerType spacy"`
}

type SamplingSettings struct {
	Algorithm  string `json:"algorithm" validate:"oneof=random closest_in_different_clusters farthest_in_same_cluster"`
	NbToSelect int    `json:"nb_to_select" validate:"gte=1"`
	RandomSeed int64  `json:"random_seed"`
}

type ClusteringSettings struct {
	Algorithm    string `json:"algorithm" validate:"oneof=kmeans hierarchical spectral"`
	NbClusters   int    `json:"nb_clusters" validate:"gte=2"`
	Init         string `json:"init" validate:"oneof=random kmeans++"`
	MaxIteration int    `json:"max_iteration" validate:"gte=1"`
	RandomSeed   int64  `json:"random_seed"`
}

// Settings configure one iteration of a project.
type Settings struct {
	Preprocessing             PreprocessingSettings `json:"preprocessing"`
	Vectorization             VectorizationSettings `json:"vectorization"`
	Sampling                  SamplingSettings      `json:"sampling"`
	Clustering                ClusteringSettings    `json:"clustering"`
	MaxIterationForAnnotation int                   `json:"max_iteration_for_annotation" validate:"gte=1"`
}

// DefaultSettings returns the settings of a new project.
func DefaultSettings() Settings {
	return Settings{
		Preprocessing: PreprocessingSettings{
			ApplyStopwordsDeletion: true,
			SpacyLanguageModel:     "fr_core_news_md",
		},
		Vectorization: VectorizationSettings{
			VectorizerType:     "tfidf",
			SpacyLanguageModel: "fr_core_news_md",
		},
		Sampling: SamplingSettings{
			Algorithm:  "closest_in_different_clusters",
			NbToSelect: 25,
			RandomSeed: 42,
		},
		Clustering: ClusteringSettings{
			Algorithm:    "kmeans",
			NbClusters:   10,
			Init:         "kmeans++",
			MaxIteration: 150,
			RandomSeed:   42,
		},
		MaxIterationForAnnotation: 10,
	}
}

// Validate checks ranges, enums and cross-field requirements.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid settings: %s", ErrBadRequest, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: invalid settings: %v", ErrBadRequest, err)
	}
	return nil
}

// SettingsUpdate carries the sections to change. Each section is JSON decoded on
// top of the current values, so fields left out keep their value. Nil sections
// are kept.
type SettingsUpdate struct {
	Preprocessing             json.RawMessage `json:"preprocessing,omitempty"`
	Vectorization             json.RawMessage `json:"vectorization,omitempty"`
	Sampling                  json.RawMessage `json:"sampling,omitempty"`
	Clustering                json.RawMessage `json:"clustering,omitempty"`
	MaxIterationForAnnotation *int            `json:"max_iteration_for_annotation,omitempty"`
}

// DecodeSettingsUpdate parses a JSON settings update, rejecting unknown sections.
// Unknown options inside a section are rejected by Apply.
func DecodeSettingsUpdate(r io.Reader) (SettingsUpdate, error) {
	var update SettingsUpdate
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		return SettingsUpdate{}, fmt.Errorf("%w: decode settings: %v", ErrBadRequest, err)
	}
	if dec.More() {
		return SettingsUpdate{}, fmt.Errorf("%w: trailing data after settings", ErrBadRequest)
	}
	return update, nil
}

// DecodeSettingsUpdateBytes is DecodeSettingsUpdate over a byte slice.
func DecodeSettingsUpdateBytes(data []byte) (SettingsUpdate, error) {
	return DecodeSettingsUpdate(bytes.NewReader(data))
}

// Empty reports whether the update changes nothing.
func (u SettingsUpdate) Empty() bool {
	return len(u.Preprocessing) == 0 && len(u.Vectorization) == 0 && len(u.Sampling) == 0 &&
		len(u.Clustering) == 0 && u.MaxIterationForAnnotation == nil
}

// Apply returns base with the update's sections merged in.
func (u SettingsUpdate) Apply(base Settings) (Settings, error) {
	out := base
	sections := []struct {
		name string
		raw  json.RawMessage
		dst  any
	}{
		{"preprocessing", u.Preprocessing, &out.Preprocessing},
		{"vectorization", u.Vectorization, &out.Vectorization},
		{"sampling", u.Sampling, &out.Sampling},
		{"clustering", u.Clustering, &out.Clustering},
	}
	for _, sec := range sections {
		if len(sec.raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(sec.raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(sec.dst); err != nil {
			return base, fmt.Errorf("%w: decode %s settings: %v", ErrBadRequest, sec.name, err)
		}
	}
	if u.MaxIterationForAnnotation != nil {
		out.MaxIterationForAnnotation = *u.MaxIterationForAnnotation
	}
	return out, nil
}

// settingsChange describes which parts of an iteration's settings differ.
type settingsChange struct {
	modelization bool
	task         bool
	global       bool
}

func diffSettings(before, after Settings) settingsChange {
	return settingsChange{
		modelization: before.Preprocessing != after.Preprocessing || before.Vectorization != after.Vectorization,
		task:         before.Sampling != after.Sampling || before.Clustering != after.Clustering,
		global:       before.MaxIterationForAnnotation != after.MaxIterationForAnnotation,
	}
}
