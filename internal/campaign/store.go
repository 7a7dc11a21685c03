package campaign

import (
	"context"
	"errors"
)

// ErrStoreUnavailable wraps any campaign store read failure. Callers must
// fail fast on it rather than treating the request as "no campaigns match".
var ErrStoreUnavailable = errors.New("campaign store unavailable")

// ErrNotFound is returned for lookups of campaigns that do not exist.
var ErrNotFound = errors.New("campaign not found")

// Store is the read boundary the engine consumes. Campaigns are listed per
// request so definition changes are visible immediately; the engine never
// caches them.
type Store interface {
	ListCampaigns(ctx context.Context) ([]Campaign, error)
}

// AdminStore adds the authoring surface used by the campaign CRUD API.
type AdminStore interface {
	Store
	GetCampaign(ctx context.Context, id string) (Campaign, error)
	CreateCampaign(ctx context.Context, c Campaign) (Campaign, error)
	UpdateCampaign(ctx context.Context, c Campaign) (Campaign, error)
	DeleteCampaign(ctx context.Context, id string) error
}
