package google

import (
	"context"
	"fmt"

	"github.com/gradpath-api/internal/domain"
	"google.golang.org/api/idtoken"
)

// Payload is the normalized identity-provider result consumed by the
// session core. No provider-specific fields leak past this struct.
type Payload struct {
	ProviderID  string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Verifier verifies Google ID tokens against a specific client ID.
type Verifier struct {
	clientID string
}

func NewVerifier(clientID string) *Verifier {
	return &Verifier{clientID: clientID}
}

// Verify validates the Google ID token and returns the normalized payload.
// Returns a domain.ErrUnauthorized-wrapped error if the token is invalid.
func (v *Verifier) Verify(ctx context.Context, token string) (*Payload, error) {
	p, err := idtoken.Validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid google token: %w", domain.ErrUnauthorized)
	}
	email, _ := p.Claims["email"].(string)
	name, _ := p.Claims["name"].(string)
	picture, _ := p.Claims["picture"].(string)
	return &Payload{
		ProviderID:  p.Subject,
		Email:       email,
		DisplayName: name,
		PhotoURL:    picture,
	}, nil
}
