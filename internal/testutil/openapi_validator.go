package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// Routes answered in plain text outside the API document.
var undocumentedPaths = map[string]bool{
	"/healthz":          true,
	"/readyz":           true,
	"/api/openapi.yaml": true,
}

const maxReportedBody = 300

// OpenAPIValidator checks handler responses against api/openapi/openapi.yaml.
type OpenAPIValidator struct {
	router routers.Router
}

// NewOpenAPIValidator loads the document at specPath or fails the test.
func NewOpenAPIValidator(t *testing.T, specPath string) *OpenAPIValidator {
	t.Helper()

	v, err := LoadOpenAPIValidator(specPath)
	if err != nil {
		t.Fatalf("load OpenAPI validator: %v", err)
	}
	return v
}

// LoadOpenAPIValidator loads and validates the document at specPath.
// It is the TestMain variant of NewOpenAPIValidator.
func LoadOpenAPIValidator(specPath string) (*OpenAPIValidator, error) {
	doc, err := openapi3.NewLoader().LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI document %s: %w", specPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate OpenAPI document: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build OpenAPI router: %w", err)
	}

	return &OpenAPIValidator{router: router}, nil
}

// ValidateResponse reports a test error when resp does not match the documented
// response of req's operation. The response body stays readable afterwards.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()

	if undocumentedPaths[req.URL.Path] {
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Errorf("read response body: %v", err)
		return
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if err := v.check(req, resp.StatusCode, resp.Header, body); err != nil {
		t.Errorf("OpenAPI: %s %s -> %d: %v\nbody: %s",
			req.Method, req.URL.Path, resp.StatusCode, err, shorten(body))
	}
}

func (v *OpenAPIValidator) check(req *http.Request, status int, header http.Header, body []byte) error {
	// The document has no servers block, so routes match on the bare path.
	routeReq, err := http.NewRequest(req.Method, req.URL.RequestURI(), nil)
	if err != nil {
		return fmt.Errorf("build route request: %w", err)
	}

	route, pathParams, err := v.router.FindRoute(routeReq)
	if err != nil {
		return fmt.Errorf("undocumented route: %w", err)
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    routeReq,
			PathParams: pathParams,
			Route:      route,
		},
		Status: status,
		Header: header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}

	return openapi3filter.ValidateResponse(context.Background(), input)
}

func shorten(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxReportedBody {
		return s[:maxReportedBody] + "..."
	}
	return s
}
