// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/cmsd2/monotone/internal/monotone/kv"
	"github.com/cmsd2/monotone/pkg/monotone"
)

func kvCounterRow(id string, version, value uint64) kv.Row {
	return kv.Row{ID: id, Type: kv.RowTypeCounter, Version: version, Value: value}
}

// fakeDynamoClient embeds the interface so only the methods this adapter
// actually calls need overriding, matching etalazz-vsa's habit of stubbing
// narrow interfaces for its persistence tests (LoggingRedisEvaler et al).
type fakeDynamoClient struct {
	dynamodbiface.DynamoDBAPI

	items map[string]map[string]*dynamodb.AttributeValue

	putErr     error
	getErr     error
	tableState string // "", "missing", "active"
}

func newFakeDynamoClient() *fakeDynamoClient {
	return &fakeDynamoClient{items: make(map[string]map[string]*dynamodb.AttributeValue)}
}

func (f *fakeDynamoClient) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	id := *in.Key[attrID].S
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func (f *fakeDynamoClient) PutItemWithContext(_ aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	id := *in.Item[attrID].S
	expected := *in.ExpressionAttributeValues[":version"].N
	existing, ok := f.items[id]
	var currentVersion string
	if ok {
		currentVersion = *existing[attrVersion].N
	}
	if (ok && currentVersion != expected) || (!ok && expected != "0") {
		return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "conditional failed", nil)
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoClient) DeleteItemWithContext(_ aws.Context, in *dynamodb.DeleteItemInput, _ ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	id := *in.Key[attrID].S
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamoClient) DescribeTableWithContext(_ aws.Context, in *dynamodb.DescribeTableInput, _ ...request.Option) (*dynamodb.DescribeTableOutput, error) {
	switch f.tableState {
	case "active":
		return &dynamodb.DescribeTableOutput{Table: &dynamodb.TableDescription{
			TableName:   in.TableName,
			TableStatus: aws.String(dynamodb.TableStatusActive),
		}}, nil
	default:
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "not found", nil)
	}
}

func (f *fakeDynamoClient) CreateTableWithContext(_ aws.Context, in *dynamodb.CreateTableInput, _ ...request.Option) (*dynamodb.CreateTableOutput, error) {
	f.tableState = "active"
	return &dynamodb.CreateTableOutput{Table: &dynamodb.TableDescription{TableName: in.TableName}}, nil
}

func TestAdapter_ReadMissing(t *testing.T) {
	a := New(newFakeDynamoClient(), "Counters")
	row, err := a.Read(context.Background(), "c1")
	if err != nil || row != nil {
		t.Fatalf("expected nil row, got row=%+v err=%v", row, err)
	}
}

func TestAdapter_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamoClient()
	a := New(client, "Counters")

	row := kvCounterRow("c1", 0, 1)
	if err := a.ConditionalWrite(ctx, row, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := a.Read(ctx, "c1")
	if err != nil || got == nil {
		t.Fatalf("read: got=%+v err=%v", got, err)
	}
	if got.Version != 0 || got.Value != 1 {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestAdapter_ConditionalWriteFailsOnVersionMismatch(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamoClient()
	a := New(client, "Counters")

	if err := a.ConditionalWrite(ctx, kvCounterRow("c1", 0, 1), 0); err != nil {
		t.Fatalf("first write: %v", err)
	}
	err := a.ConditionalWrite(ctx, kvCounterRow("c1", 1, 2), 0)
	if err == nil {
		t.Fatal("expected conditional update failure")
	}
	var merr *monotone.Error
	if !errors.As(err, &merr) || merr.Kind != monotone.KindConditionalUpdateFailed {
		t.Fatalf("expected ConditionalUpdateFailed, got %v", err)
	}
}

func TestAdapter_EnsureNamespaceCreatesWhenMissing(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamoClient()
	a := New(client, "Counters")

	if err := a.EnsureNamespace(ctx, "Counters", 5, 5); err != nil {
		t.Fatalf("ensure_namespace: %v", err)
	}
	if client.tableState != "active" {
		t.Fatalf("expected table to be created")
	}
	if err := a.AwaitNamespaceReady(ctx, "Counters"); err != nil {
		t.Fatalf("await_namespace_ready: %v", err)
	}
}
