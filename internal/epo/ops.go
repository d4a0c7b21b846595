package epo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Reference types accepted by the published-data, family and legal services.
const (
	RefPublication = "publication"
	RefApplication = "application"
	RefPriority    = "priority"
)

// Number formats.
const (
	FormatEpodoc   = "epodoc"
	FormatDocdb    = "docdb"
	FormatOriginal = "original"
)

// Published-data constituents.
const (
	ConstituentBiblio      = "biblio"
	ConstituentAbstract    = "abstract"
	ConstituentClaims      = "claims"
	ConstituentDescription = "description"
)

var rangePattern = regexp.MustCompile(`^\d+-\d+$`)

// Reference identifies a patent document in OPS.
type Reference struct {
	Type   string
	Format string
	Number string
}

func (r Reference) withDefaults() Reference {
	if r.Type == "" {
		r.Type = RefPublication
	}
	if r.Format == "" {
		r.Format = FormatEpodoc
	}
	r.Number = strings.TrimSpace(r.Number)
	return r
}

func (r Reference) validate() error {
	switch r.Type {
	case RefPublication, RefApplication, RefPriority:
	default:
		return fmt.Errorf("unsupported reference type %q", r.Type)
	}
	switch r.Format {
	case FormatEpodoc, FormatDocdb, FormatOriginal:
	default:
		return fmt.Errorf("unsupported number format %q", r.Format)
	}
	if r.Number == "" {
		return errors.New("document number cannot be empty")
	}
	return nil
}

// path renders "{type}/{format}/{number}" with the number escaped for use in a URL path.
func (r Reference) path() string {
	return r.Type + "/" + r.Format + "/" + url.PathEscape(r.Number)
}

// Search runs a CQL query against published-data and returns bibliographic
// data for the matching documents. rangeSpec is "first-last", e.g. "1-25".
func (c *Client) Search(ctx context.Context, cql, rangeSpec string) (json.RawMessage, error) {
	cql = strings.TrimSpace(cql)
	if cql == "" {
		return nil, errors.New("search query cannot be empty")
	}
	q := url.Values{"q": {cql}}
	if rangeSpec != "" {
		if !rangePattern.MatchString(rangeSpec) {
			return nil, fmt.Errorf("invalid range %q, expected first-last", rangeSpec)
		}
		q.Set("Range", rangeSpec)
	}
	return c.get(ctx, "published-data/search/biblio", q)
}

// PublishedData fetches one constituent of a document.
func (c *Client) PublishedData(ctx context.Context, ref Reference, constituent string) (json.RawMessage, error) {
	ref = ref.withDefaults()
	if err := ref.validate(); err != nil {
		return nil, err
	}
	switch constituent {
	case ConstituentBiblio, ConstituentAbstract, ConstituentClaims, ConstituentDescription:
	default:
		return nil, fmt.Errorf("unsupported constituent %q", constituent)
	}
	return c.get(ctx, "published-data/"+ref.path()+"/"+constituent, nil)
}

// Family returns the INPADOC patent family of a document.
func (c *Client) Family(ctx context.Context, ref Reference, withBiblio bool) (json.RawMessage, error) {
	ref = ref.withDefaults()
	if err := ref.validate(); err != nil {
		return nil, err
	}
	path := "family/" + ref.path()
	if withBiblio {
		path += "/biblio"
	}
	return c.get(ctx, path, nil)
}

// Legal returns the legal status events of a document.
func (c *Client) Legal(ctx context.Context, ref Reference) (json.RawMessage, error) {
	ref = ref.withDefaults()
	if err := ref.validate(); err != nil {
		return nil, err
	}
	return c.get(ctx, "legal/"+ref.path(), nil)
}
