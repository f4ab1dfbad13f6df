package models

import "time"

// User represents an application user (mapped from credential claims)
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Sub       string    `bson:"sub" json:"sub"` // credential subject
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Identity is the authenticated principal bound to a connection for its lifetime.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// IdentityFromClaims maps verified token claims to an Identity. Returns false
// when the subject is missing.
func IdentityFromClaims(claims map[string]interface{}) (Identity, bool) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		// HS256 tokens minted by older clients carry the id under "id"
		sub, _ = claims["id"].(string)
	}
	if sub == "" {
		return Identity{}, false
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	return Identity{ID: sub, Name: name, Email: email}, true
}
