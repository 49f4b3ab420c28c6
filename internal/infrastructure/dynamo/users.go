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
	"github.com/go-signup-api/internal/domain"
	"github.com/go-signup-api/internal/pkg/id"
)

// UserRepo provides typed DynamoDB operations for the users table.
type UserRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserRepo(client *dynamodb.Client, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

// CheckConflict probes the email and mobile GSIs for an existing account.
// Email wins when both would conflict.
func (r *UserRepo) CheckConflict(ctx context.Context, email, mobile string) (domain.ConflictCheck, error) {
	taken, err := r.existsByGSI(ctx, "email-index", "email", email)
	if err != nil {
		return domain.ConflictCheck{}, err
	}
	if taken {
		return domain.ConflictCheck{Exists: true, ConflictField: "email"}, nil
	}
	taken, err = r.existsByGSI(ctx, "mobile_no-index", "mobile_no", mobile)
	if err != nil {
		return domain.ConflictCheck{}, err
	}
	if taken {
		return domain.ConflictCheck{Exists: true, ConflictField: "mobile"}, nil
	}
	return domain.ConflictCheck{}, nil
}

// Create inserts a permanent account. It re-checks the uniqueness GSIs and
// writes with a conditional put so a concurrent duplicate completion creates
// at most one account.
func (r *UserRepo) Create(ctx context.Context, data domain.CreateUserData) (*domain.User, error) {
	check, err := r.CheckConflict(ctx, data.Email, data.MobileNo)
	if err != nil {
		return nil, err
	}
	if check.Exists {
		return nil, &domain.ConflictError{Field: check.ConflictField}
	}

	now := time.Now().UTC()
	user := &domain.User{
		UserID:    id.New(),
		Name:      data.Name,
		Email:     data.Email,
		MobileNo:  data.MobileNo,
		Password:  data.Password,
		Role:      domain.RoleUser,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(user_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, &domain.ConflictError{Field: "email"}
		}
		return nil, fmt.Errorf("put user: %w", err)
	}
	return user, nil
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
		return nil, domain.ErrNotFound
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	out, err := r.queryGSI(ctx, "email-index", "email", email)
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, domain.ErrNotFound
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) existsByGSI(ctx context.Context, index, attr, value string) (bool, error) {
	out, err := r.queryGSI(ctx, index, attr, value)
	if err != nil {
		return false, err
	}
	return len(out.Items) > 0, nil
}

func (r *UserRepo) queryGSI(ctx context.Context, index, attr, value string) (*dynamodb.QueryOutput, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", index, err)
	}
	return out, nil
}
