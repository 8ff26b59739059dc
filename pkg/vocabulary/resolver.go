package vocabulary

import (
	"context"

	"github.com/liliang-cn/channelfinder/pkg/merge"
)

// Resolver answers owner lookups for the merge engine from the tag and
// property repositories
type Resolver struct {
	Tags       *Repository
	Properties *Repository
}

var _ merge.OwnerResolver = (*Resolver)(nil)

// ResolveOwners returns the current owners of the named tags and properties.
// Names that do not exist are absent from the result.
func (r *Resolver) ResolveOwners(ctx context.Context, tagNames, propertyNames []string) (merge.Owners, error) {
	tags, err := r.Tags.Owners(ctx, tagNames)
	if err != nil {
		return merge.Owners{}, err
	}
	props, err := r.Properties.Owners(ctx, propertyNames)
	if err != nil {
		return merge.Owners{}, err
	}
	return merge.Owners{Tags: tags, Properties: props}, nil
}
