package validation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch/mappings"
)

const (
	defaultVectorField      = mappings.VectorField
	defaultVectorType       = mappings.VectorType
	defaultVectorDimensions = mappings.VectorDimensions
	defaultVectorSimilarity = mappings.VectorSimilarity

	knnVectorType = "knn_vector"
)

// spaceTypes maps knn_vector space types onto dense_vector similarities.
var spaceTypes = map[string]string{
	"cosinesimil":  "cosine",
	"l2":           "l2_norm",
	"innerproduct": "dot_product",
}

// VectorSpec is the expected shape of the vector field.
type VectorSpec struct {
	Field      string
	Type       string
	Dimensions int
	Similarity string
}

// SchemaRule checks the vector field of the target mapping. A mapping without
// the field passes.
type SchemaRule struct {
	backend Backend
	spec    VectorSpec
}

// NewSchemaRule creates a schema rule for spec.
func NewSchemaRule(backend Backend, spec VectorSpec) *SchemaRule {
	return &SchemaRule{backend: backend, spec: spec}
}

func (r *SchemaRule) Name() string { return "vector_schema" }

func (r *SchemaRule) Validate(ctx context.Context, _, target string) domain.ValidationResult {
	mapping, err := r.backend.GetMapping(ctx, target)
	if err != nil {
		return errorResult("get target mapping", err)
	}

	details := domain.SchemaDetails{
		Field:              r.spec.Field,
		ExpectedType:       r.spec.Type,
		ExpectedDimensions: r.spec.Dimensions,
		ExpectedSimilarity: r.spec.Similarity,
	}

	field, ok := lookupField(mapping, r.spec.Field)
	if !ok {
		return domain.ValidationResult{
			Passed:  true,
			Message: fmt.Sprintf("field %s not mapped, nothing to check", r.spec.Field),
			Details: details,
		}
	}
	details.Present = true
	details.ActualType, _ = field["type"].(string)
	details.ActualDimensions, details.ActualSimilarity = vectorShape(field, details.ActualType)

	var problems []string
	if !sameVectorType(details.ActualType, r.spec.Type) {
		problems = append(problems, fmt.Sprintf("type %q, want %q", details.ActualType, r.spec.Type))
	}
	if details.ActualDimensions != r.spec.Dimensions {
		problems = append(problems, fmt.Sprintf("dimensions %d, want %d", details.ActualDimensions, r.spec.Dimensions))
	}
	if details.ActualSimilarity != r.spec.Similarity {
		problems = append(problems, fmt.Sprintf("similarity %q, want %q", details.ActualSimilarity, r.spec.Similarity))
	}

	if len(problems) > 0 {
		return domain.ValidationResult{
			Passed:  false,
			Message: fmt.Sprintf("field %s: %s", r.spec.Field, strings.Join(problems, "; ")),
			Details: details,
		}
	}
	return domain.ValidationResult{
		Passed:  true,
		Message: fmt.Sprintf("field %s matches %s(%d, %s)", r.spec.Field, r.spec.Type, r.spec.Dimensions, r.spec.Similarity),
		Details: details,
	}
}

// lookupField resolves a dotted field path through nested "properties" objects.
func lookupField(mapping map[string]any, path string) (map[string]any, bool) {
	current := mapping
	for _, part := range strings.Split(path, ".") {
		props, ok := current["properties"].(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := props[part].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// vectorShape reads the dimension count and similarity of either vector field flavour.
// dense_vector fields without an explicit similarity use the backend default, cosine.
func vectorShape(field map[string]any, fieldType string) (int, string) {
	if fieldType == knnVectorType {
		dims := toInt(field["dimension"])
		method, _ := field["method"].(map[string]any)
		space, _ := method["space_type"].(string)
		if mapped, ok := spaceTypes[space]; ok {
			space = mapped
		}
		return dims, space
	}

	similarity, _ := field["similarity"].(string)
	if similarity == "" {
		similarity = "cosine"
	}
	return toInt(field["dims"]), similarity
}

func sameVectorType(actual, expected string) bool {
	if actual == expected {
		return true
	}
	vectorTypes := []string{defaultVectorType, knnVectorType}
	return slices.Contains(vectorTypes, actual) && slices.Contains(vectorTypes, expected)
}
