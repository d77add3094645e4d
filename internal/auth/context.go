package auth

import (
	"context"

	"github.com/sakif/reservations/internal/model"
)

// viewerKey is unexported so only this package can set or read the viewer.
type viewerKey struct{}

// WithViewer returns a copy of ctx carrying the resolved user.
// A nil user marks the request as anonymous.
func WithViewer(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, viewerKey{}, u)
}

// ViewerFromContext returns the user resolved for this request.
// Returns (nil, false) for anonymous requests.
func ViewerFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(viewerKey{}).(*model.User)
	return u, ok && u != nil
}
