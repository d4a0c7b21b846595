package epo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sozercan/patentgpt/internal/tools"
)

// Tool names exposed to the model.
const (
	ToolSearchPatents        = "searchPatents"
	ToolGetBibliographicData = "getBibliographicData"
	ToolGetAbstract          = "getAbstract"
	ToolGetClaims            = "getClaims"
	ToolGetDescription       = "getDescription"
	ToolGetPatentFamily      = "getPatentFamily"
	ToolGetLegalStatus       = "getLegalStatus"
)

// API is the part of the OPS client the toolkit depends on.
type API interface {
	Search(ctx context.Context, cql, rangeSpec string) (json.RawMessage, error)
	PublishedData(ctx context.Context, ref Reference, constituent string) (json.RawMessage, error)
	Family(ctx context.Context, ref Reference, withBiblio bool) (json.RawMessage, error)
	Legal(ctx context.Context, ref Reference) (json.RawMessage, error)
}

type searchInput struct {
	Query string `json:"query" desc:"CQL query, e.g. ta=graphene and ta=battery, pa=siemens, pd within \"2020 2023\", cpc=H01M"`
	Range string `json:"range,omitempty" desc:"result window as first-last, at most 100 wide, default 1-25"`
}

type documentInput struct {
	Number        string `json:"number" desc:"document number, e.g. EP1000000 (epodoc) or EP.1000000.A1 (docdb)"`
	ReferenceType string `json:"referenceType,omitempty" enum:"publication,application,priority" desc:"defaults to publication"`
	Format        string `json:"format,omitempty" enum:"epodoc,docdb,original" desc:"defaults to epodoc"`
}

func (in documentInput) reference() Reference {
	return Reference{Type: in.ReferenceType, Format: in.Format, Number: in.Number}
}

type familyInput struct {
	Number        string `json:"number" desc:"document number, e.g. EP1000000 (epodoc) or EP.1000000.A1 (docdb)"`
	ReferenceType string `json:"referenceType,omitempty" enum:"publication,application,priority" desc:"defaults to publication"`
	Format        string `json:"format,omitempty" enum:"epodoc,docdb,original" desc:"defaults to epodoc"`
	IncludeBiblio bool   `json:"includeBiblio,omitempty" desc:"also return bibliographic data for each family member"`
}

func (in familyInput) reference() Reference {
	return Reference{Type: in.ReferenceType, Format: in.Format, Number: in.Number}
}

// notFound is returned to the model instead of an error so the conversation can continue.
type notFound struct {
	Found   bool   `json:"found"`
	Message string `json:"message"`
}

// Toolkit exposes OPS operations as model tools. It is built once and is safe
// for concurrent use.
type Toolkit struct {
	api   API
	tools tools.Set
}

func NewToolkit(api API) (*Toolkit, error) {
	if api == nil {
		return nil, errors.New("EPO client cannot be nil")
	}
	k := &Toolkit{api: api, tools: tools.Set{}}
	if err := k.register(); err != nil {
		return nil, err
	}
	slog.Info("EPO toolkit ready", "tools", k.tools.Names())
	return k, nil
}

// GetTools returns the fixed tool set. The returned map is a copy.
func (k *Toolkit) GetTools() (tools.Set, error) {
	if k == nil || len(k.tools) == 0 {
		return nil, errors.New("EPO toolkit is not initialized")
	}
	return k.tools.Clone(), nil
}

type toolSpec struct {
	name        string
	description string
	input       interface{}
	fn          tools.Func
}

func (k *Toolkit) register() error {
	specs := []toolSpec{
		{
			name:        ToolSearchPatents,
			description: "Search published patent documents worldwide with an EPO OPS CQL query. Returns bibliographic data of the matches.",
			input:       searchInput{},
			fn:          k.searchPatents,
		},
		{
			name:        ToolGetBibliographicData,
			description: "Get bibliographic data (title, applicants, inventors, classifications, dates) of a patent document.",
			input:       documentInput{},
			fn:          k.publishedData(ConstituentBiblio),
		},
		{
			name:        ToolGetAbstract,
			description: "Get the abstract of a patent document.",
			input:       documentInput{},
			fn:          k.publishedData(ConstituentAbstract),
		},
		{
			name:        ToolGetClaims,
			description: "Get the claims of a patent document. Full text is available for EP and WO documents and some other authorities.",
			input:       documentInput{},
			fn:          k.publishedData(ConstituentClaims),
		},
		{
			name:        ToolGetDescription,
			description: "Get the full-text description of a patent document. Full text is available for EP and WO documents and some other authorities.",
			input:       documentInput{},
			fn:          k.publishedData(ConstituentDescription),
		},
		{
			name:        ToolGetPatentFamily,
			description: "Get the INPADOC patent family of a document, i.e. related filings in other countries.",
			input:       familyInput{},
			fn:          k.patentFamily,
		},
		{
			name:        ToolGetLegalStatus,
			description: "Get legal status events (grant, lapse, opposition, fees) of a patent document.",
			input:       documentInput{},
			fn:          k.legalStatus,
		},
	}

	for _, s := range specs {
		t, err := tools.New(s.name, s.description, s.input, s.fn)
		if err != nil {
			return fmt.Errorf("register %s: %w", s.name, err)
		}
		if err := k.tools.Add(t); err != nil {
			return err
		}
	}
	return nil
}

func (k *Toolkit) searchPatents(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in searchInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", ToolSearchPatents, err)
	}
	return wrapResult(k.api.Search(ctx, in.Query, in.Range))
}

func (k *Toolkit) publishedData(constituent string) tools.Func {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var in documentInput
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", constituent, err)
		}
		return wrapResult(k.api.PublishedData(ctx, in.reference(), constituent))
	}
}

func (k *Toolkit) patentFamily(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in familyInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", ToolGetPatentFamily, err)
	}
	return wrapResult(k.api.Family(ctx, in.reference(), in.IncludeBiblio))
}

func (k *Toolkit) legalStatus(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in documentInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", ToolGetLegalStatus, err)
	}
	return wrapResult(k.api.Legal(ctx, in.reference()))
}

func wrapResult(data json.RawMessage, err error) (interface{}, error) {
	if errors.Is(err, ErrNotFound) {
		return notFound{Found: false, Message: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
