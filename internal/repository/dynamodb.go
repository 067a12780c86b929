package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tts-relay/internal/domain"
)

const (
	skProfile = "PROFILE"
	skState   = "STATE"

	attrSpent = "charactersSpent"
	attrMode  = "mode"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Client wraps a DynamoDB table holding user quota records and conversation
// state. One partition per identity: the PROFILE item carries the consumption
// counter, the STATE item the conversation mode.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// userPK returns the DynamoDB partition key for an identity.
func userPK(identity string) string {
	return "USER#" + identity
}

func itemKey(identity, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPK(identity)},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// GetOrCreate returns the quota record for identity, creating it with a zero
// counter on first contact. Creation is a conditional put, so exactly one of
// any number of concurrent first contacts writes the record; the losers read
// back what the winner wrote.
func (c *Client) GetOrCreate(ctx context.Context, identity string) (domain.User, error) {
	user, found, err := c.getUser(ctx, identity)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetOrCreate get: %w", err)
	}
	if found {
		return user, nil
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":      &types.AttributeValueMemberS{Value: userPK(identity)},
			"SK":      &types.AttributeValueMemberS{Value: skProfile},
			attrSpent: &types.AttributeValueMemberN{Value: "0"},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// Lost the creation race; the record exists now.
			user, found, err = c.getUser(ctx, identity)
			if err != nil {
				return domain.User{}, fmt.Errorf("repository: GetOrCreate reread: %w", err)
			}
			if !found {
				return domain.User{}, errors.New("repository: GetOrCreate: record vanished after conditional put failure")
			}
			return user, nil
		}
		return domain.User{}, fmt.Errorf("repository: GetOrCreate put: %w", err)
	}
	return domain.User{Identity: identity}, nil
}

// Charge atomically adds characters to the identity's counter and returns the
// updated record. ADD is applied server side, so concurrent charges for the
// same identity all land; no read-modify-write.
func (c *Client) Charge(ctx context.Context, identity string, characters int) (domain.User, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              itemKey(identity, skProfile),
		UpdateExpression: aws.String("ADD " + attrSpent + " :n"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberN{Value: strconv.Itoa(characters)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: Charge update: %w", err)
	}
	spent, err := intAttr(out.Attributes, attrSpent)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: Charge decode: %w", err)
	}
	return domain.User{Identity: identity, CharactersSpent: spent}, nil
}

// State returns the conversation mode for identity, Inactive when no state
// item exists.
func (c *Client) State(ctx context.Context, identity string) (domain.ConversationState, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(identity, skState),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.StateInactive, fmt.Errorf("repository: State get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.StateInactive, nil
	}
	mode, err := strAttr(out.Item, attrMode)
	if err != nil {
		return domain.StateInactive, fmt.Errorf("repository: State decode: %w", err)
	}
	if mode == string(domain.StateActive) {
		return domain.StateActive, nil
	}
	return domain.StateInactive, nil
}

// Activate marks identity as active. A plain put keeps this idempotent:
// re-activating overwrites the state item with the same value.
func (c *Client) Activate(ctx context.Context, identity string) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: userPK(identity)},
			"SK":     &types.AttributeValueMemberS{Value: skState},
			attrMode: &types.AttributeValueMemberS{Value: string(domain.StateActive)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Activate put: %w", err)
	}
	return nil
}

func (c *Client) getUser(ctx context.Context, identity string) (domain.User, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(identity, skProfile),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.User{}, false, err
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, false, nil
	}
	spent, err := intAttr(out.Item, attrSpent)
	if err != nil {
		return domain.User{}, false, err
	}
	return domain.User{Identity: identity, CharactersSpent: spent}, true, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
