// Package credential holds the durable credential blob: access token,
// refresh token and cached user profile, stored under fixed key names.
// Every implementation saves and clears the three keys atomically so a
// token is never persisted without its matching profile.
package credential

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// Fixed key names of the persisted blob.
const (
	KeyAccess  = "access"
	KeyRefresh = "refresh"
	KeyUser    = "user"
)

// Blob is the persisted session. A zero Blob means anonymous.
type Blob struct {
	Access  string     `json:"access"`
	Refresh string     `json:"refresh"`
	User    model.User `json:"user"`
}

// Empty reports whether no access token is stored.
func (b Blob) Empty() bool { return b.Access == "" }

// Store is the durable key/value holder behind the session manager.
// Load on an empty store returns a zero Blob and no error.
type Store interface {
	Load(ctx context.Context) (Blob, error)
	Save(ctx context.Context, b Blob) error
	Clear(ctx context.Context) error
}

// toValues flattens a blob into its three keyed values.
func toValues(b Blob) (map[string]string, error) {
	user, err := json.Marshal(b.User)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}
	return map[string]string{
		KeyAccess:  b.Access,
		KeyRefresh: b.Refresh,
		KeyUser:    string(user),
	}, nil
}

// fromValues rebuilds a blob. Absence of any key is treated as anonymous.
func fromValues(vals map[string]string) (Blob, error) {
	access, okA := vals[KeyAccess]
	refresh, okR := vals[KeyRefresh]
	user, okU := vals[KeyUser]
	if !okA || !okR || !okU || access == "" {
		return Blob{}, nil
	}
	b := Blob{Access: access, Refresh: refresh}
	if err := json.Unmarshal([]byte(user), &b.User); err != nil {
		return Blob{}, fmt.Errorf("decode cached user: %w", err)
	}
	return b, nil
}
