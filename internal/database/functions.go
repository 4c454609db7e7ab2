package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrConditionFailed is returned when a conditional write loses its race:
// the item no longer satisfies the ConditionExpression. Callers translate
// this into their domain conflict (claim lost, already resolved, capacity
// exhausted) rather than treating it as a store failure.
var ErrConditionFailed = errors.New("database: condition failed")

// TransactCancelled carries the per-item cancellation reasons of a failed
// TransactWriteItems call so callers can tell which condition lost.
type TransactCancelled struct {
	Reasons []types.CancellationReason
}

func (e *TransactCancelled) Error() string {
	return fmt.Sprintf("database: transaction cancelled (%d items)", len(e.Reasons))
}

// ConditionFailedAt reports whether the item at index i was the one whose
// ConditionExpression failed.
func (e *TransactCancelled) ConditionFailedAt(i int) bool {
	if i < 0 || i >= len(e.Reasons) {
		return false
	}
	code := aws.ToString(e.Reasons[i].Code)
	return code == "ConditionalCheckFailed"
}

func (c *DynamoDBClient) PutItem(
	ctx context.Context,
	tableName string,
	item interface{},
) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      av,
	}

	_, err = c.svc.PutItem(ctx, input)
	if err != nil {
		return fmt.Errorf("put item %s: %w", tableName, err)
	}
	return nil
}

// PutItemConditional writes the item only if the condition holds, e.g.
// attribute_not_exists(pk) for create-once semantics.
func (c *DynamoDBClient) PutItemConditional(
	ctx context.Context,
	tableName string,
	item interface{},
	conditionExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(tableName),
		Item:                av,
		ConditionExpression: aws.String(conditionExpr),
	}
	if exprAttrValues != nil {
		input.ExpressionAttributeValues = exprAttrValues
	}
	if exprAttrNames != nil {
		input.ExpressionAttributeNames = exprAttrNames
	}

	_, err = c.svc.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("put item conditional %s: %w", tableName, err)
	}
	return nil
}

func (c *DynamoDBClient) GetItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	out interface{},
) error {
	return c.getItem(ctx, tableName, key, out, false)
}

// GetItemConsistent reads with ConsistentRead, so a read that follows a
// committed write on the same key always observes it.
func (c *DynamoDBClient) GetItemConsistent(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	out interface{},
) error {
	return c.getItem(ctx, tableName, key, out, true)
}

func (c *DynamoDBClient) getItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	out interface{},
	consistent bool,
) error {
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(consistent),
	}

	res, err := c.svc.GetItem(ctx, input)
	if err != nil {
		return fmt.Errorf("get item %s: %w", tableName, err)
	}
	if res.Item == nil {
		return fmt.Errorf("item not found in %s", tableName)
	}

	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

func (c *DynamoDBClient) UpdateItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	updateExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
	out interface{},
) error {
	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       key,
		UpdateExpression:          aws.String(updateExpr),
		ExpressionAttributeValues: exprAttrValues,
		ExpressionAttributeNames:  exprAttrNames,
		ReturnValues:              types.ReturnValueAllNew,
	}

	res, err := c.svc.UpdateItem(ctx, input)
	if err != nil {
		return fmt.Errorf("update item %s: %w", tableName, err)
	}

	if out != nil {
		if err := attributevalue.UnmarshalMap(res.Attributes, out); err != nil {
			return fmt.Errorf("unmarshal updated item: %w", err)
		}
	}
	return nil
}

// UpdateItemConditional applies the update only while conditionExpr holds.
// The status-gated transitions of handoff sessions and the monotonic stat
// counters all go through here; a lost race surfaces as ErrConditionFailed.
func (c *DynamoDBClient) UpdateItemConditional(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	updateExpr string,
	conditionExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
	out interface{},
) error {
	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       key,
		UpdateExpression:          aws.String(updateExpr),
		ConditionExpression:       aws.String(conditionExpr),
		ExpressionAttributeValues: exprAttrValues,
		ExpressionAttributeNames:  exprAttrNames,
		ReturnValues:              types.ReturnValueAllNew,
	}

	res, err := c.svc.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item conditional %s: %w", tableName, err)
	}

	if out != nil {
		if err := attributevalue.UnmarshalMap(res.Attributes, out); err != nil {
			return fmt.Errorf("unmarshal updated item: %w", err)
		}
	}
	return nil
}

// TransactUpdate describes one conditioned update inside a transaction.
type TransactUpdate struct {
	TableName      string
	Key            map[string]types.AttributeValue
	UpdateExpr     string
	ConditionExpr  string
	ExprAttrValues map[string]types.AttributeValue
	ExprAttrNames  map[string]string
}

// TransactPut describes one conditioned put inside a transaction.
type TransactPut struct {
	TableName      string
	Item           interface{}
	ConditionExpr  string
	ExprAttrValues map[string]types.AttributeValue
	ExprAttrNames  map[string]string
}

// TransactDelete describes one delete inside a transaction.
type TransactDelete struct {
	TableName     string
	Key           map[string]types.AttributeValue
	ConditionExpr string
}

// TransactItem holds exactly one of the write kinds.
type TransactItem struct {
	Put    *TransactPut
	Update *TransactUpdate
	Delete *TransactDelete
}

// TransactWrite runs all writes as one atomic unit. When the transaction
// is cancelled because a condition failed, the returned error is a
// *TransactCancelled whose reasons align with the writes slice.
func (c *DynamoDBClient) TransactWrite(
	ctx context.Context,
	writes []TransactItem,
) error {
	items := make([]types.TransactWriteItem, 0, len(writes))
	for _, w := range writes {
		switch {
		case w.Put != nil:
			av, err := attributevalue.MarshalMap(w.Put.Item)
			if err != nil {
				return fmt.Errorf("marshal transact put item: %w", err)
			}
			put := &types.Put{
				TableName: aws.String(w.Put.TableName),
				Item:      av,
			}
			if w.Put.ConditionExpr != "" {
				put.ConditionExpression = aws.String(w.Put.ConditionExpr)
			}
			if w.Put.ExprAttrValues != nil {
				put.ExpressionAttributeValues = w.Put.ExprAttrValues
			}
			if w.Put.ExprAttrNames != nil {
				put.ExpressionAttributeNames = w.Put.ExprAttrNames
			}
			items = append(items, types.TransactWriteItem{Put: put})

		case w.Update != nil:
			update := &types.Update{
				TableName:        aws.String(w.Update.TableName),
				Key:              w.Update.Key,
				UpdateExpression: aws.String(w.Update.UpdateExpr),
			}
			if w.Update.ConditionExpr != "" {
				update.ConditionExpression = aws.String(w.Update.ConditionExpr)
			}
			if w.Update.ExprAttrValues != nil {
				update.ExpressionAttributeValues = w.Update.ExprAttrValues
			}
			if w.Update.ExprAttrNames != nil {
				update.ExpressionAttributeNames = w.Update.ExprAttrNames
			}
			items = append(items, types.TransactWriteItem{Update: update})

		case w.Delete != nil:
			del := &types.Delete{
				TableName: aws.String(w.Delete.TableName),
				Key:       w.Delete.Key,
			}
			if w.Delete.ConditionExpr != "" {
				del.ConditionExpression = aws.String(w.Delete.ConditionExpr)
			}
			items = append(items, types.TransactWriteItem{Delete: del})

		default:
			return fmt.Errorf("transact write: empty item")
		}
	}

	_, err := c.svc.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			return &TransactCancelled{Reasons: cancelled.CancellationReasons}
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// TransactWriteUpdates runs all updates as one atomic unit.
func (c *DynamoDBClient) TransactWriteUpdates(
	ctx context.Context,
	updates []TransactUpdate,
) error {
	writes := make([]TransactItem, 0, len(updates))
	for i := range updates {
		writes = append(writes, TransactItem{Update: &updates[i]})
	}
	return c.TransactWrite(ctx, writes)
}

func (c *DynamoDBClient) QueryItems(
	ctx context.Context,
	tableName string,
	indexName *string,
	keyCondExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
	scanIndexForward *bool,
) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		KeyConditionExpression:    aws.String(keyCondExpr),
		ExpressionAttributeValues: exprAttrValues,
	}
	if indexName != nil {
		input.IndexName = indexName
	}
	if exprAttrNames != nil {
		input.ExpressionAttributeNames = exprAttrNames
	}

	if scanIndexForward != nil {
		input.ScanIndexForward = aws.Bool(*scanIndexForward)
	}

	out, err := c.svc.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query %s[%s]: %w", tableName, aws.ToString(indexName), err)
	}

	return out.Items, nil
}

// QueryItemsConsistent queries the base table with ConsistentRead, in key
// order. ConsistentRead is only valid against the base table, so this
// takes no index name.
func (c *DynamoDBClient) QueryItemsConsistent(
	ctx context.Context,
	tableName string,
	keyCondExpr string,
	exprAttrValues map[string]types.AttributeValue,
) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		KeyConditionExpression:    aws.String(keyCondExpr),
		ExpressionAttributeValues: exprAttrValues,
		ConsistentRead:            aws.Bool(true),
	}

	out, err := c.svc.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", tableName, err)
	}

	return out.Items, nil
}

// QueryAll performs a complete query, handling pagination internally.
func (c *DynamoDBClient) QueryAll(
	ctx context.Context,
	tableName string,
	indexName *string,
	keyCondExpr string,
	exprAttrValues map[string]types.AttributeValue,
) ([]map[string]types.AttributeValue, error) {
	var allItems []map[string]types.AttributeValue
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(tableName),
			KeyConditionExpression:    aws.String(keyCondExpr),
			ExpressionAttributeValues: exprAttrValues,
		}

		if indexName != nil {
			input.IndexName = indexName
		}

		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := c.svc.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query all %s[%s]: %w", tableName, aws.ToString(indexName), err)
		}

		allItems = append(allItems, result.Items...)

		if result.LastEvaluatedKey == nil {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	return allItems, nil
}
