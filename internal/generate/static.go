package generate

import (
	"context"
	"fmt"

	"github.com/hpungsan/sightline/internal/fixcache"
)

// Static is a deterministic offline generator. It is used when no API key is
// configured and in tests.
type Static struct{}

// Generate returns a templated suggestion derived from the request.
func (Static) Generate(ctx context.Context, req Request) (fixcache.Payload, error) {
	if err := ctx.Err(); err != nil {
		return fixcache.Payload{}, err
	}
	if err := req.Validate(); err != nil {
		return fixcache.Payload{}, err
	}
	suggestion := fmt.Sprintf("[%s] %s", req.FixType, req.LiveContent)
	if req.LiveContent == "" {
		suggestion = fmt.Sprintf("[%s] new %s", req.FixType, req.FieldGroup)
	}
	return fixcache.Payload{
		Suggestion:      suggestion,
		Model:           "static",
		TemplateVersion: req.TemplateVersion,
	}, nil
}
