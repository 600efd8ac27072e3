package model

import "encoding/json"

// User is the profile returned by GET /auth/me and cached alongside the
// token pair. Fields not modelled here are kept in Raw so the cached
// profile round-trips without loss.
//
// Fields:
//  ID     – backend user id.
//  Email  – login email.
//  Nombre – display name.
//  Rol    – role name (e.g. ADMIN, CLIENTE).
type User struct {
	ID     uint64          `json:"id"`
	Email  string          `json:"email"`
	Nombre string          `json:"nombre,omitempty"`
	Rol    string          `json:"rol,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the original document in Raw.
func (u *User) UnmarshalJSON(b []byte) error {
	type alias User
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*u = User(a)
	u.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON writes Raw back when present so unknown fields survive.
func (u User) MarshalJSON() ([]byte, error) {
	if len(u.Raw) > 0 {
		return u.Raw, nil
	}
	type alias User
	return json.Marshal(alias(u))
}

// IsZero reports whether no profile is present.
func (u User) IsZero() bool { return u.ID == 0 && u.Email == "" && len(u.Raw) == 0 }
