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

// Package dynamo is the DynamoDB kv.Adapter (C1), grounded on
// original_source/monotone/src/aws/dynamodb.rs and aws/counter.rs /
// aws/queue.rs: GetItem for reads, PutItem with a ConditionExpression on
// Version for conditional writes, CreateTable/DescribeTable polling for
// namespace provisioning.
package dynamo

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/cmsd2/monotone/internal/monotone/codec"
	"github.com/cmsd2/monotone/internal/monotone/kv"
	"github.com/cmsd2/monotone/pkg/monotone"
)

const (
	attrID      = "ID"
	attrType    = "Type"
	attrVersion = "Version"
	attrValue   = "Value"
	attrItems   = "Items"
)

// Adapter implements kv.Adapter over a single DynamoDB table, one row per
// item keyed by ID (hash key).
type Adapter struct {
	Client    dynamodbiface.DynamoDBAPI
	TableName string
	// PollInterval controls how often AwaitNamespaceReady re-checks table
	// status. Defaults to 1 second, matching the original source's
	// wait_for_table loop.
	PollInterval time.Duration
}

// New builds an Adapter over the given client and table.
func New(client dynamodbiface.DynamoDBAPI, tableName string) *Adapter {
	return &Adapter{Client: client, TableName: tableName, PollInterval: time.Second}
}

var _ kv.Adapter = (*Adapter)(nil)

func (a *Adapter) Read(ctx context.Context, id string) (*kv.Row, error) {
	out, err := a.Client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.TableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			attrID: {S: aws.String(id)},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return itemToRow(id, out.Item)
}

func itemToRow(id string, item map[string]*dynamodb.AttributeValue) (*kv.Row, error) {
	typAttr, ok := item[attrType]
	if !ok || typAttr.S == nil {
		return nil, monotone.ErrMissingAttribute(id, attrType)
	}
	typ := kv.RowType(*typAttr.S)

	versionAttr, ok := item[attrVersion]
	if !ok || versionAttr.N == nil {
		return nil, monotone.ErrMissingAttribute(id, attrVersion)
	}
	version, err := strconv.ParseUint(*versionAttr.N, 10, 64)
	if err != nil {
		return nil, monotone.ErrMalformedRow(id, attrVersion, err)
	}

	valueAttr, ok := item[attrValue]
	if !ok || valueAttr.N == nil {
		return nil, monotone.ErrMissingAttribute(id, attrValue)
	}
	value, err := strconv.ParseUint(*valueAttr.N, 10, 64)
	if err != nil {
		return nil, monotone.ErrMalformedRow(id, attrValue, err)
	}

	row := kv.Row{ID: id, Type: typ, Version: version, Value: value}

	if itemsAttr, ok := item[attrItems]; ok && itemsAttr.SS != nil {
		ss := make([]string, len(itemsAttr.SS))
		for i, s := range itemsAttr.SS {
			ss[i] = *s
		}
		items, err := codec.DecodeItemSet(ss)
		if err != nil {
			return nil, monotone.ErrMalformedRow(id, attrItems, err)
		}
		row.Items = items
	}

	return &row, nil
}

// ConditionalWrite mirrors the original source's write(): PutItem with
// ConditionExpression "Version = :version OR attribute_not_exists(Version)".
// A failed condition check is translated to monotone.ErrConditionalUpdateFailed.
func (a *Adapter) ConditionalWrite(ctx context.Context, row kv.Row, expectedVersion uint64) error {
	item := map[string]*dynamodb.AttributeValue{
		attrID:      {S: aws.String(row.ID)},
		attrType:    {S: aws.String(string(row.Type))},
		attrVersion: {N: aws.String(strconv.FormatUint(row.Version, 10))},
		attrValue:   {N: aws.String(strconv.FormatUint(row.Value, 10))},
	}

	if len(row.Items) > 0 {
		ss, err := codec.EncodeItemSet(row.Items)
		if err != nil {
			return err
		}
		strs := make([]*string, len(ss))
		for i, s := range ss {
			strs[i] = aws.String(s)
		}
		item[attrItems] = &dynamodb.AttributeValue{SS: strs}
	}

	_, err := a.Client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(a.TableName),
		Item:                item,
		ConditionExpression: aws.String("Version = :version OR attribute_not_exists(Version)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":version": {N: aws.String(strconv.FormatUint(expectedVersion, 10))},
		},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return monotone.ErrConditionalUpdateFailed()
		}
		return err
	}
	return nil
}

// Delete removes the row. DynamoDB's DeleteItem is inherently idempotent: a
// missing key is not an error.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	_, err := a.Client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(a.TableName),
		Key: map[string]*dynamodb.AttributeValue{
			attrID: {S: aws.String(id)},
		},
	})
	return err
}

// EnsureNamespace creates the table if it does not already exist, matching
// create_table_if_needed's retry-until-settled loop.
func (a *Adapter) EnsureNamespace(ctx context.Context, name string, readCapacity, writeCapacity int64) error {
	for {
		_, err := a.describeTable(ctx, name)
		if err == nil {
			return nil
		}
		merr, ok := err.(*monotone.Error)
		if !ok || merr.Kind != monotone.KindTableNotFound {
			return err
		}

		_, createErr := a.Client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(name),
			AttributeDefinitions: []*dynamodb.AttributeDefinition{
				{AttributeName: aws.String(attrID), AttributeType: aws.String("S")},
			},
			KeySchema: []*dynamodb.KeySchemaElement{
				{AttributeName: aws.String(attrID), KeyType: aws.String("HASH")},
			},
			ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(readCapacity),
				WriteCapacityUnits: aws.Int64(writeCapacity),
			},
		})
		if createErr != nil {
			if aerr, ok := createErr.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeResourceInUseException {
				// Table already exists, or another caller is creating it: loop
				// back around and describe it.
				continue
			}
			return createErr
		}
	}
}

// AwaitNamespaceReady polls DescribeTable until the table status is ACTIVE.
func (a *Adapter) AwaitNamespaceReady(ctx context.Context, name string) error {
	interval := a.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	for {
		desc, err := a.describeTable(ctx, name)
		if err != nil {
			return err
		}
		if desc != nil && desc.TableStatus != nil && *desc.TableStatus == dynamodb.TableStatusActive {
			return nil
		}

		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

func (a *Adapter) describeTable(ctx context.Context, name string) (*dynamodb.TableDescription, error) {
	out, err := a.Client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeResourceNotFoundException {
			return nil, monotone.ErrTableNotFound(name)
		}
		return nil, err
	}
	if out.Table == nil {
		return nil, monotone.ErrNoTableInfo(name)
	}
	return out.Table, nil
}
