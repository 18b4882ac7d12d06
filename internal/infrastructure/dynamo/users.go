package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gradpath-api/internal/domain"
)

// Attribute names shared by the conditional updates below.
const (
	fieldRefreshTokenHash      = "refresh_token_hash"
	fieldRefreshExpiresAt      = "refresh_expires_at"
	fieldVerificationTokenHash = "verification_token_hash"
	fieldVerificationExpiresAt = "verification_expires_at"
	fieldIsEmailVerified       = "is_email_verified"
	fieldIsActive              = "is_active"
	fieldUpdatedAt             = "updated_at"
)

// UserRepo provides typed DynamoDB operations for the users table. It
// is the credential store: account lookups plus the conditional
// updates that make refresh rotation and verification consumption
// single-use.
type UserRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserRepo(client *dynamodb.Client, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

func (r *UserRepo) Put(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryGSI(ctx, "email-index", "email", email)
}

// GetByRefreshTokenHash finds the account holding the presented
// refresh token's digest. Misses map to ErrNotFound; rotation replaces
// the digest, so a rotated-out raw value never resolves here again.
func (r *UserRepo) GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.User, error) {
	return r.queryGSI(ctx, "refresh_token_hash-index", fieldRefreshTokenHash, hash)
}

// GetByVerificationTokenHash finds the account with a pending
// verification token matching the presented digest.
func (r *UserRepo) GetByVerificationTokenHash(ctx context.Context, hash string) (*domain.User, error) {
	return r.queryGSI(ctx, "verification_token_hash-index", fieldVerificationTokenHash, hash)
}

func (r *UserRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// SetRefreshToken installs a fresh refresh pair unconditionally. Used
// by login and provider sign-in, where overwriting any previous
// session is the intended single-session behavior.
func (r *UserRepo) SetRefreshToken(ctx context.Context, userID, hash string, expiresAt int64) error {
	return r.Update(ctx, userID, map[string]interface{}{
		fieldRefreshTokenHash: hash,
		fieldRefreshExpiresAt: expiresAt,
	})
}

// RotateRefreshToken replaces the stored refresh pair only if oldHash
// is still the stored digest. Two concurrent rotations presenting the
// same raw token resolve to exactly one winner: the loser's condition
// fails and surfaces as ErrUnauthorized.
func (r *UserRepo) RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string, newExpiry int64) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("user_id", userID),
		UpdateExpression:    aws.String("SET #rth = :new, #rexp = :exp, #upd = :now"),
		ConditionExpression: aws.String("#rth = :old"),
		ExpressionAttributeNames: map[string]string{
			"#rth":  fieldRefreshTokenHash,
			"#rexp": fieldRefreshExpiresAt,
			"#upd":  fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberS{Value: newHash},
			":old": &types.AttributeValueMemberS{Value: oldHash},
			":exp": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newExpiry)},
			":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if isConditionalCheckFailed(err) {
		return fmt.Errorf("refresh token already rotated or revoked: %w", domain.ErrUnauthorized)
	}
	return err
}

// ClearRefreshToken removes the stored refresh pair. Idempotent —
// clearing an account with no session is a no-op.
func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("user_id", userID),
		UpdateExpression: aws.String("REMOVE #rth, #rexp SET #upd = :now"),
		ExpressionAttributeNames: map[string]string{
			"#rth":  fieldRefreshTokenHash,
			"#rexp": fieldRefreshExpiresAt,
			"#upd":  fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	return err
}

// SetVerificationToken installs (or replaces) the pending verification
// pair on an account.
func (r *UserRepo) SetVerificationToken(ctx context.Context, userID, hash string, expiresAt int64) error {
	return r.Update(ctx, userID, map[string]interface{}{
		fieldVerificationTokenHash: hash,
		fieldVerificationExpiresAt: expiresAt,
	})
}

// ConsumeVerificationToken marks the account verified, clears the
// verification pair, and installs the given refresh pair in a single
// conditional update. The condition requires the stored digest to
// still equal tokenHash and to be unexpired, so a token is consumable
// exactly once. Returns the updated account.
func (r *UserRepo) ConsumeVerificationToken(ctx context.Context, userID, tokenHash, refreshHash string, refreshExpiry int64) (*domain.User, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
		UpdateExpression: aws.String(
			"SET #ver = :t, #rth = :rth, #rexp = :rexp, #upd = :now REMOVE #vth, #vexp"),
		ConditionExpression: aws.String("#vth = :vth AND #vexp > :nowunix"),
		ExpressionAttributeNames: map[string]string{
			"#ver":  fieldIsEmailVerified,
			"#rth":  fieldRefreshTokenHash,
			"#rexp": fieldRefreshExpiresAt,
			"#vth":  fieldVerificationTokenHash,
			"#vexp": fieldVerificationExpiresAt,
			"#upd":  fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":       &types.AttributeValueMemberBOOL{Value: true},
			":rth":     &types.AttributeValueMemberS{Value: refreshHash},
			":rexp":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", refreshExpiry)},
			":vth":     &types.AttributeValueMemberS{Value: tokenHash},
			":nowunix": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Unix())},
			":now":     &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionalCheckFailed(err) {
		return nil, fmt.Errorf("invalid or expired verification token: %w", domain.ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Attributes, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Deactivate disables the account and revokes any active session. The
// auth cache is invalidated by the caller; absent that, cached
// "active" reads may persist up to the cache TTL.
func (r *UserRepo) Deactivate(ctx context.Context, userID string) error {
	if err := r.Update(ctx, userID, map[string]interface{}{fieldIsActive: false}); err != nil {
		return err
	}
	return r.ClearRefreshToken(ctx, userID)
}

func (r *UserRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
