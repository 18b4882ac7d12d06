package http

import (
	"context"

	"github.com/gradpath-api/internal/infrastructure/dynamo"
	googleinfra "github.com/gradpath-api/internal/infrastructure/google"
	jwtinfra "github.com/gradpath-api/internal/infrastructure/jwt"
	redisinfra "github.com/gradpath-api/internal/infrastructure/redis"
	s3infra "github.com/gradpath-api/internal/infrastructure/s3"
	"github.com/gradpath-api/internal/metrics"
)

// Notifier delivers verification messages. Satisfied by both the SMTP
// mailer and the SNS publisher; main picks one at startup.
type Notifier interface {
	SendVerification(ctx context.Context, email, fullName, rawToken string) error
}

// GoogleVerifier validates Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (*googleinfra.Payload, error)
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo       *dynamo.UserRepo
	AuthCache      *redisinfra.AuthCache
	ImageStore     *s3infra.Store
	Notifier       Notifier
	GoogleVerifier GoogleVerifier
	JWTProvider    *jwtinfra.Provider
	Metrics        *metrics.Collector
}
