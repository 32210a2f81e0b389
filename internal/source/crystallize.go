// Package source fetches the hierarchical catalogue tree from the upstream
// content platform.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/pkg/httpclient"
	"github.com/utafrali/catalogue-search/pkg/tracing"
)

// Errors returned by FetchTree.
var (
	// ErrFetch covers timeouts, non-2xx responses, GraphQL errors and
	// responses without a catalogue.
	ErrFetch = errors.New("catalogue fetch failed")
	// ErrInvalidTenant is returned for tenant identifiers that cannot be put
	// in the upstream URL.
	ErrInvalidTenant = errors.New("invalid tenant identifier")
)

var tenantPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidTenant reports whether tenant is an acceptable upstream identifier.
func ValidTenant(tenant string) bool {
	return tenantPattern.MatchString(tenant)
}

// Poster sends a JSON POST request. *httpclient.CircuitBreakerClient
// satisfies it.
type Poster interface {
	PostJSON(ctx context.Context, url string, payload any) (*http.Response, error)
}

// Config holds the upstream endpoint settings.
type Config struct {
	BaseURL   string
	TreeDepth int
}

// CrystallizeSource reads catalogue trees from the Crystallize catalogue
// GraphQL API.
type CrystallizeSource struct {
	client  Poster
	baseURL string
	query   string
	logger  *slog.Logger
}

// NewCrystallizeSource creates a source that POSTs to
// {BaseURL}/{tenant}/catalogue.
func NewCrystallizeSource(client Poster, cfg Config, logger *slog.Logger) *CrystallizeSource {
	return &CrystallizeSource{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		query:   buildCatalogueQuery(cfg.TreeDepth),
		logger:  logger,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type catalogueResponse struct {
	Data *struct {
		Catalogue *struct {
			Children []domain.CatalogueNode `json:"children"`
		} `json:"catalogue"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// FetchTree returns the children of the catalogue root for tenant in
// language. Any failure is fatal for the caller and wraps ErrFetch.
func (s *CrystallizeSource) FetchTree(ctx context.Context, tenant, language string) ([]domain.CatalogueNode, error) {
	if !ValidTenant(tenant) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTenant, tenant)
	}

	ctx, span := tracing.Tracer("catalogue-search/source").Start(ctx, "catalogue.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("catalogue.tenant", tenant),
		attribute.String("catalogue.language", language),
	)

	nodes, err := s.fetch(ctx, tenant, language)
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.ErrorContext(ctx, "catalogue fetch failed",
			slog.String("tenant", tenant),
			slog.String("language", language),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("catalogue.root_children", len(nodes)))
	return nodes, nil
}

func (s *CrystallizeSource) fetch(ctx context.Context, tenant, language string) ([]domain.CatalogueNode, error) {
	url := s.baseURL + "/" + tenant + "/catalogue"

	resp, err := s.client.PostJSON(ctx, url, graphQLRequest{
		Query:     s.query,
		Variables: map[string]any{"language": language},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if err := httpclient.CheckResponse(resp, "catalogue-api"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body catalogueResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrFetch, err)
	}

	if len(body.Errors) > 0 {
		msgs := make([]string, len(body.Errors))
		for i, e := range body.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("%w: graphql: %s", ErrFetch, strings.Join(msgs, "; "))
	}
	if body.Data == nil || body.Data.Catalogue == nil {
		return nil, fmt.Errorf("%w: response has no catalogue", ErrFetch)
	}

	children := body.Data.Catalogue.Children
	if children == nil {
		children = []domain.CatalogueNode{}
	}
	return children, nil
}
