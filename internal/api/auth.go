package api

import (
	"context"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
)

type contextKey string

const identityKey contextKey = "identity"

const subjectIdParam = "subject_id"

func WithIdentity(ctx context.Context, id types.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (types.Identity, bool) {
	id, ok := ctx.Value(identityKey).(types.Identity)
	return id, ok
}
