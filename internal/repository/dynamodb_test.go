package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"tts-relay/internal/domain"
)

type fakeDynamo struct {
	// getOuts are consumed in order; the last one repeats.
	getOuts      []*dynamodb.GetItemOutput
	getErr       error
	putErr       error
	updateOut    *dynamodb.UpdateItemOutput
	updateErr    error
	getCalls     int
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastUpdateIn *dynamodb.UpdateItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	idx := f.getCalls
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(f.getOuts) == 0 {
		return &dynamodb.GetItemOutput{}, nil
	}
	if idx >= len(f.getOuts) {
		idx = len(f.getOuts) - 1
	}
	return f.getOuts[idx], nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdateIn = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updateOut != nil {
		return f.updateOut, nil
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func profileItem(identity string, spent int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":      &types.AttributeValueMemberS{Value: "USER#" + identity},
		"SK":      &types.AttributeValueMemberS{Value: skProfile},
		attrSpent: &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", spent)},
	}
}

func stateItem(identity string, mode string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":     &types.AttributeValueMemberS{Value: "USER#" + identity},
		"SK":     &types.AttributeValueMemberS{Value: skState},
		attrMode: &types.AttributeValueMemberS{Value: mode},
	}
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func TestGetOrCreate_ExistingRecord(t *testing.T) {
	db := &fakeDynamo{getOuts: []*dynamodb.GetItemOutput{{Item: profileItem("42", 120)}}}
	c := mustNewClient(t, db)

	u, err := c.GetOrCreate(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, domain.User{Identity: "42", CharactersSpent: 120}, u)
	require.Nil(t, db.lastPutInput, "no put when the record exists")
}

func TestGetOrCreate_FirstContactCreatesZeroRecord(t *testing.T) {
	db := &fakeDynamo{getOuts: []*dynamodb.GetItemOutput{{}}}
	c := mustNewClient(t, db)

	u, err := c.GetOrCreate(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, domain.User{Identity: "42", CharactersSpent: 0}, u)

	require.NotNil(t, db.lastPutInput)
	require.Equal(t, "attribute_not_exists(PK)", *db.lastPutInput.ConditionExpression)
	require.Equal(t, "USER#42", db.lastPutInput.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "0", db.lastPutInput.Item[attrSpent].(*types.AttributeValueMemberN).Value)
}

func TestGetOrCreate_LosesCreationRace(t *testing.T) {
	// First read misses, conditional put fails because a concurrent first
	// contact won, the reread returns the winner's record.
	db := &fakeDynamo{
		getOuts: []*dynamodb.GetItemOutput{{}, {Item: profileItem("42", 0)}},
		putErr:  &types.ConditionalCheckFailedException{},
	}
	c := mustNewClient(t, db)

	u, err := c.GetOrCreate(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, domain.User{Identity: "42", CharactersSpent: 0}, u)
	require.Equal(t, 2, db.getCalls)
}

func TestGetOrCreate_PutError(t *testing.T) {
	db := &fakeDynamo{getOuts: []*dynamodb.GetItemOutput{{}}, putErr: errors.New("throttled")}
	c := mustNewClient(t, db)

	_, err := c.GetOrCreate(context.Background(), "42")
	require.Error(t, err)
	require.ErrorContains(t, err, "throttled")
}

func TestCharge_AtomicAddExpression(t *testing.T) {
	db := &fakeDynamo{updateOut: &dynamodb.UpdateItemOutput{Attributes: profileItem("42", 125)}}
	c := mustNewClient(t, db)

	u, err := c.Charge(context.Background(), "42", 5)
	require.NoError(t, err)
	require.Equal(t, domain.User{Identity: "42", CharactersSpent: 125}, u)

	require.NotNil(t, db.lastUpdateIn)
	require.Equal(t, "ADD charactersSpent :n", *db.lastUpdateIn.UpdateExpression)
	require.Equal(t, "5", db.lastUpdateIn.ExpressionAttributeValues[":n"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, types.ReturnValueAllNew, db.lastUpdateIn.ReturnValues)
}

func TestCharge_UpdateError(t *testing.T) {
	db := &fakeDynamo{updateErr: errors.New("table missing")}
	c := mustNewClient(t, db)

	_, err := c.Charge(context.Background(), "42", 5)
	require.Error(t, err)
	require.ErrorContains(t, err, "table missing")
}

func TestState_AbsentMeansInactive(t *testing.T) {
	db := &fakeDynamo{getOuts: []*dynamodb.GetItemOutput{{}}}
	c := mustNewClient(t, db)

	state, err := c.State(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, domain.StateInactive, state)
}

func TestState_Active(t *testing.T) {
	db := &fakeDynamo{getOuts: []*dynamodb.GetItemOutput{{Item: stateItem("42", "active")}}}
	c := mustNewClient(t, db)

	state, err := c.State(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, domain.StateActive, state)
	require.Equal(t, skState, db.lastGetInput.Key["SK"].(*types.AttributeValueMemberS).Value)
}

func TestState_UnknownModeFallsBackToInactive(t *testing.T) {
	db := &fakeDynamo{getOuts: []*dynamodb.GetItemOutput{{Item: stateItem("42", "paused")}}}
	c := mustNewClient(t, db)

	state, err := c.State(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, domain.StateInactive, state)
}

func TestState_GetError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("down")}
	c := mustNewClient(t, db)

	_, err := c.State(context.Background(), "42")
	require.Error(t, err)
}

func TestActivate_WritesStateItem(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	require.NoError(t, c.Activate(context.Background(), "42"))
	require.NotNil(t, db.lastPutInput)
	require.Equal(t, "USER#42", db.lastPutInput.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skState, db.lastPutInput.Item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "active", db.lastPutInput.Item[attrMode].(*types.AttributeValueMemberS).Value)
	require.Nil(t, db.lastPutInput.ConditionExpression, "activation must overwrite, not fail, when already active")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}
