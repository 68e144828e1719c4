package collab

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// HeaderAuth resolves identities from trusted headers set by an upstream
// gateway. It stands in for the real auth collaborator; anonymous
// requests resolve to a guest identity.
type HeaderAuth struct{}

func (HeaderAuth) IdentityFor(r *http.Request) (Identity, error) {
	var ident Identity
	if v := r.Header.Get("X-Agent-Id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return Identity{}, errors.Wrap(err, "collab.HeaderAuth.ParseAgent: ")
		}
		ident.AgentID = &id
	}
	if v := r.Header.Get("X-Customer-Id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return Identity{}, errors.Wrap(err, "collab.HeaderAuth.ParseCustomer: ")
		}
		ident.CustomerID = &id
	}
	return ident, nil
}

var ErrCustomerUnknown = errors.New("customer not found")

// EmptyLookup serves deployments without the storefront collaborators
// wired in: every customer resolves to no orders and no wishlist.
type EmptyLookup struct{}

func (EmptyLookup) CustomerByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return &Customer{ID: id}, nil
}

func (EmptyLookup) RecentOrders(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	return []Order{}, nil
}

func (EmptyLookup) Wishlist(ctx context.Context, customerID uuid.UUID) ([]WishlistItem, error) {
	return []WishlistItem{}, nil
}
