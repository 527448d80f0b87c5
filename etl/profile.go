package etl

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/logger"
)

// Profile document versions. Version 2.0 is flagged by a fieldsSource
// block whose type must be "manual"; everything else is 1.0.
const (
	ProfileVersion1 = "1.0"
	ProfileVersion2 = "2.0"
)

// profileKeyBlocks are the recognized names for the block holding the
// extract/transform/load sub-profiles, newest first.
var profileKeyBlocks = []string{"profileKeys", "etl"}

// ProfileSource fetches raw mapping documents from the profile store.
type ProfileSource interface {
	GetProfile(ctx context.Context, id string) (map[string]interface{}, error)
	GetProfileByKey(ctx context.Context, key string) (map[string]interface{}, error)
}

// Profile orchestrates Extract, Transform, and Load for one source's
// mapping configuration.
type Profile struct {
	id      string
	key     string
	version string

	extractor *Extractor
	engine    *Engine
	loader    *Loader

	steps      []TransformStep
	loadFields []LoadField
	renderer   LoadRenderer

	ready  bool
	logger *zap.SugaredLogger
}

// profileDoc is the decoded shape of a stored mapping document.
type profileDoc struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	FieldsSource *struct {
		Type string `json:"type"`
	} `json:"fieldsSource"`

	ProfileKeys map[string]json.RawMessage `json:"profileKeys"`
	Etl         map[string]json.RawMessage `json:"etl"`
}

type extractSection struct {
	Fields    []FieldMapping `json:"fields"`
	Delimiter string         `json:"delimiter"`
}

type transformSection struct {
	Fields []TransformStep `json:"fields"`
}

type loadSection struct {
	Fields   []LoadField `json:"fields"`
	Type     string      `json:"type"`
	Format   string      `json:"format"`
	Template interface{} `json:"template"`
}

// BuildProfile parses a raw mapping document into a runnable profile.
// validator and finder may be nil when the profile uses no validation
// rules or geospatial transforms.
func BuildProfile(doc map[string]interface{}, validator *Validator, finder ZipFinder) (*Profile, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding profile document")
	}
	var parsed profileDoc
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "decoding profile document")
	}

	version := ProfileVersion1
	if parsed.FieldsSource != nil {
		if parsed.FieldsSource.Type != "manual" {
			return nil, errors.Newf("unsupported fieldsSource type %q", parsed.FieldsSource.Type)
		}
		version = ProfileVersion2
	}

	block := parsed.ProfileKeys
	if block == nil {
		block = parsed.Etl
	}
	if block == nil {
		return nil, errors.Newf("profile %q has no %s block", parsed.Key, profileKeyBlocks[0])
	}
	for _, required := range []string{"extract", "transform", "load"} {
		if _, ok := block[required]; !ok {
			return nil, errors.Newf("profile %q is missing the %s section", parsed.Key, required)
		}
	}

	var extract extractSection
	if err := json.Unmarshal(block["extract"], &extract); err != nil {
		return nil, errors.Wrap(err, "decoding extract section")
	}
	var transform transformSection
	if err := json.Unmarshal(block["transform"], &transform); err != nil {
		return nil, errors.Wrap(err, "decoding transform section")
	}
	var load loadSection
	if err := json.Unmarshal(block["load"], &load); err != nil {
		return nil, errors.Wrap(err, "decoding load section")
	}

	rendererKind := load.Type
	if version == ProfileVersion2 && load.Format != "" {
		rendererKind = load.Format
	}
	if rendererKind == "" {
		rendererKind = "struct"
	}
	renderer, err := NewLoadRenderer(rendererKind, load.Template)
	if err != nil {
		return nil, errors.Wrapf(err, "profile %q", parsed.Key)
	}

	extractor := NewExtractor(extract.Fields)
	if extract.Delimiter != "" {
		extractor.SetPathDelimiter(extract.Delimiter)
	}

	profile := &Profile{
		id:         parsed.ID,
		key:        parsed.Key,
		version:    version,
		extractor:  extractor,
		engine:     NewEngine(NewStandardLibrary(), NewConditionLibrary(), NewGeospatialLibrary(finder)),
		loader:     NewLoader(validator),
		steps:      transform.Fields,
		loadFields: load.Fields,
		renderer:   renderer,
		ready:      true,
		logger:     logger.ComponentLogger("etl.profile"),
	}
	return profile, nil
}

func (p *Profile) ID() string      { return p.id }
func (p *Profile) Key() string     { return p.key }
func (p *Profile) Version() string { return p.version }

// Ready reports whether all three sub-profiles resolved and Run may be
// called.
func (p *Profile) Ready() bool {
	return p != nil && p.ready && p.extractor != nil && p.engine != nil && p.renderer != nil
}

// Run maps one source document through extract, transform, and load.
// runtimeVars are caller-injected constants visible to the extractor
// alongside the document's own fields. Validation failures are collected
// into the result; only configuration and render failures are errors.
func (p *Profile) Run(doc *Document, runtimeVars map[string]interface{}) (*Result, error) {
	if !p.Ready() {
		return nil, errors.New("cannot run ETL: profile not configured")
	}

	p.extractor.SetRuntimeVars(runtimeVars)
	extracted := p.extractor.Extract(doc)
	transformed := p.engine.Apply(p.steps, extracted)
	merged, violations := p.loader.Merge(p.loadFields, transformed)

	mapping, err := p.renderer.Render(merged)
	if err != nil {
		return nil, err
	}
	return NewResult(mapping, merged, violations), nil
}

// Profiles loads runnable profiles out of a profile store.
type Profiles struct {
	source    ProfileSource
	validator *Validator
	finder    ZipFinder
}

// NewProfiles wires the profile loader to its store and collaborators.
func NewProfiles(source ProfileSource, validator *Validator, finder ZipFinder) *Profiles {
	return &Profiles{source: source, validator: validator, finder: finder}
}

// ByID loads and builds the profile with the given id.
func (p *Profiles) ByID(ctx context.Context, id string) (*Profile, error) {
	doc, err := p.source.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildProfile(doc, p.validator, p.finder)
}

// ByKey loads and builds the profile registered under the given key.
func (p *Profiles) ByKey(ctx context.Context, key string) (*Profile, error) {
	doc, err := p.source.GetProfileByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return BuildProfile(doc, p.validator, p.finder)
}
