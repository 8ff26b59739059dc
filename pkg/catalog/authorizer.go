package catalog

import (
	"context"
	"fmt"

	"github.com/liliang-cn/channelfinder/pkg/core"
)

// Resource names the kind of catalog resource an operation acts on
type Resource string

const (
	ResourceChannel  Resource = "channel"
	ResourceTag      Resource = "tag"
	ResourceProperty Resource = "property"
)

// Authorizer is the authorization collaborator. The managers ask it before
// every write; a non-nil error aborts the operation and is reported as
// ErrUnauthorized.
type Authorizer interface {
	// AuthorizeRole checks that the caller may write resources of this kind
	AuthorizeRole(ctx context.Context, resource Resource) error
	// AuthorizeOwner checks that the caller may act on a resource owned by owner
	AuthorizeOwner(ctx context.Context, resource Resource, owner string) error
}

// AllowAll is an Authorizer that permits every operation
type AllowAll struct{}

// AuthorizeRole always succeeds
func (AllowAll) AuthorizeRole(context.Context, Resource) error { return nil }

// AuthorizeOwner always succeeds
func (AllowAll) AuthorizeOwner(context.Context, Resource, string) error { return nil }

func authorizeRole(ctx context.Context, auth Authorizer, resource Resource) error {
	if err := auth.AuthorizeRole(ctx, resource); err != nil {
		return unauthorized(err, "not allowed to modify %ss", resource)
	}
	return nil
}

func authorizeOwner(ctx context.Context, auth Authorizer, resource Resource, name, owner string) error {
	if err := auth.AuthorizeOwner(ctx, resource, owner); err != nil {
		return unauthorized(err, "not allowed to modify %s %q owned by %q", resource, name, owner)
	}
	return nil
}

func unauthorized(cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if core.Classify(cause) == core.ClassUnauthorized {
		return fmt.Errorf("%s: %w", msg, cause)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrUnauthorized, msg, cause)
}
