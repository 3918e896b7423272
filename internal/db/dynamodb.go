package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spacesedan/commentguard/internal/models"
)

const (
	CategoryIndexName = "category-published_at-index"

	attrID            = "id"
	attrCategory      = "category"
	attrPublishedTS   = "published_ts"
	attrReplyClaimed  = "reply_claimed_until"
	attrReplyPostedAt = "reply_posted_at"
)

// DynamoAPI is the subset of the DynamoDB client the store needs.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// CommentStore persists comments in a DynamoDB table keyed by comment id with
// a global secondary index on (category, published_ts).
type CommentStore struct {
	client DynamoAPI
	table  string
}

var _ Store = (*CommentStore)(nil)

func NewCommentStore(client DynamoAPI, table string) *CommentStore {
	return &CommentStore{client: client, table: table}
}

func (s *CommentStore) Get(ctx context.Context, id string) (*models.Comment, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyFor(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapDynamoErr("get", err)
	}
	if len(out.Item) == 0 {
		return nil, models.ErrNotFound
	}
	return itemToComment(out.Item)
}

func (s *CommentStore) Upsert(ctx context.Context, c *models.Comment) (bool, error) {
	item, err := commentToItem(c)
	if err != nil {
		return false, fmt.Errorf("[DynamoDB] failed to marshal comment %s: %w", c.ID, err)
	}

	// a placeholder is replaceable only while no reply is posted or in flight
	replaceable := "#fallback = :true AND attribute_not_exists(#posted) AND attribute_not_exists(#claim)"
	names := map[string]string{
		"#category": attrCategory,
		"#fallback": "classification_fallback",
		"#posted":   attrReplyPostedAt,
		"#claim":    attrReplyClaimed,
	}
	values := map[string]types.AttributeValue{
		":true": &types.AttributeValueMemberBOOL{Value: true},
	}
	condition := "attribute_not_exists(#category) OR (" + replaceable + ")"
	if c.ClassificationFallback {
		// a repeated fallback only bumps the attempt counter of a placeholder
		condition = "attribute_not_exists(#category) OR (" + replaceable + " AND #attempts < :attempts)"
		names["#attempts"] = "classification_attempts"
		values[":attempts"] = &types.AttributeValueMemberN{Value: strconv.Itoa(c.ClassificationAttempts)}
	}

	out, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      item,
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, models.ErrAlreadyClassified
		}
		return false, wrapDynamoErr("put", err)
	}
	return len(out.Attributes) == 0, nil
}

func (s *CommentStore) Query(ctx context.Context, q Query) (*QueryPage, error) {
	if q.Category == nil {
		if q.Cursor != "" {
			return nil, models.ErrInvalidCursor
		}
		return s.queryAllCategories(ctx, q)
	}
	return s.queryCategory(ctx, q)
}

func (s *CommentStore) queryCategory(ctx context.Context, q Query) (*QueryPage, error) {
	limit := q.limit()
	input := s.categoryQueryInput(*q.Category, q)

	if q.Cursor != "" {
		cur, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		if cur.Category != string(*q.Category) {
			return nil, models.ErrInvalidCursor
		}
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			attrID:          &types.AttributeValueMemberS{Value: cur.ID},
			attrCategory:    &types.AttributeValueMemberS{Value: cur.Category},
			attrPublishedTS: &types.AttributeValueMemberN{Value: strconv.FormatInt(cur.PublishedTS, 10)},
		}
	}

	page := &QueryPage{}
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() && len(page.Comments) < limit {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapDynamoErr("query", err)
		}
		for _, item := range out.Items {
			c, err := itemToComment(item)
			if err != nil {
				slog.Warn("[DynamoDB] Skipping unreadable comment item", slog.String("error", err.Error()))
				continue
			}
			page.Comments = append(page.Comments, c)
			if len(page.Comments) == limit {
				break
			}
		}
	}

	if len(page.Comments) == limit {
		page.NextCursor = encodeCursor(page.Comments[len(page.Comments)-1])
	}
	return page, nil
}

// queryAllCategories merges the newest comments of every category partition.
func (s *CommentStore) queryAllCategories(ctx context.Context, q Query) (*QueryPage, error) {
	limit := q.limit()
	var merged []*models.Comment
	for _, category := range models.Categories {
		if q.ExcludeBlocked && category == models.CategoryToxic {
			continue
		}
		cat := category
		sub := q
		sub.Category = &cat
		sub.Limit = limit
		page, err := s.queryCategory(ctx, sub)
		if err != nil {
			return nil, err
		}
		merged = append(merged, page.Comments...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PublishedAt.After(merged[j].PublishedAt)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return &QueryPage{Comments: merged}, nil
}

func (s *CommentStore) categoryQueryInput(category models.Category, q Query) *dynamodb.QueryInput {
	names := map[string]string{"#category": attrCategory}
	values := map[string]types.AttributeValue{
		":category": &types.AttributeValueMemberS{Value: string(category)},
	}

	var filters []string
	if q.MinToxicity != nil {
		names["#toxicity"] = "toxicity_score"
		values[":min_toxicity"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(*q.MinToxicity, 'f', -1, 64)}
		filters = append(filters, "#toxicity >= :min_toxicity")
	}
	if q.ExcludeBlocked {
		names["#blocked"] = "blocked"
		values[":false"] = &types.AttributeValueMemberBOOL{Value: false}
		filters = append(filters, "#blocked = :false")
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(CategoryIndexName),
		KeyConditionExpression:    aws.String("#category = :category"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(q.limit())),
	}
	if len(filters) > 0 {
		expr := filters[0]
		for _, f := range filters[1:] {
			expr += " AND " + f
		}
		input.FilterExpression = aws.String(expr)
	}
	return input
}

func (s *CommentStore) Count(ctx context.Context, category models.Category, awaitingReply bool) (int, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(CategoryIndexName),
		KeyConditionExpression: aws.String("#category = :category"),
		ExpressionAttributeNames: map[string]string{
			"#category": attrCategory,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":category": &types.AttributeValueMemberS{Value: string(category)},
		},
		Select: types.SelectCount,
	}
	if awaitingReply {
		input.ExpressionAttributeNames["#needs_reply"] = "needs_reply"
		input.ExpressionAttributeValues[":true"] = &types.AttributeValueMemberBOOL{Value: true}
		input.FilterExpression = aws.String("#needs_reply = :true")
	}

	total := 0
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, wrapDynamoErr("count", err)
		}
		total += int(out.Count)
	}
	return total, nil
}

func (s *CommentStore) ClaimReply(ctx context.Context, id string, at time.Time, lease time.Duration) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              keyFor(id),
		UpdateExpression: aws.String("SET #claim = :until"),
		ConditionExpression: aws.String(
			"attribute_exists(#id) AND attribute_not_exists(#posted) AND " +
				"(attribute_not_exists(#claim) OR #claim < :now)"),
		ExpressionAttributeNames: map[string]string{
			"#id":     attrID,
			"#posted": attrReplyPostedAt,
			"#claim":  attrReplyClaimed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":until": &types.AttributeValueMemberN{Value: strconv.FormatInt(at.Add(lease).UnixMilli(), 10)},
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(at.UnixMilli(), 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	return conditionalErr("claim reply", err)
}

func (s *CommentStore) ReleaseReply(ctx context.Context, id string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 keyFor(id),
		UpdateExpression:    aws.String("REMOVE #claim"),
		ConditionExpression: aws.String("attribute_exists(#id) AND attribute_not_exists(#posted)"),
		ExpressionAttributeNames: map[string]string{
			"#id":     attrID,
			"#posted": attrReplyPostedAt,
			"#claim":  attrReplyClaimed,
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	return conditionalErr("release reply", err)
}

func (s *CommentStore) MarkReplied(ctx context.Context, id string, at time.Time) error {
	posted, err := attributevalue.Marshal(at.UTC())
	if err != nil {
		return fmt.Errorf("[DynamoDB] failed to marshal reply time: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 keyFor(id),
		UpdateExpression:    aws.String("SET #posted = :posted, #needs_reply = :false REMOVE #claim"),
		ConditionExpression: aws.String("attribute_exists(#id) AND attribute_not_exists(#posted)"),
		ExpressionAttributeNames: map[string]string{
			"#id":          attrID,
			"#posted":      attrReplyPostedAt,
			"#needs_reply": "needs_reply",
			"#claim":       attrReplyClaimed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":posted": posted,
			":false":  &types.AttributeValueMemberBOOL{Value: false},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	return conditionalErr("mark replied", err)
}

// conditionalErr maps a failed reply condition to NotFound when the item is
// absent and AlreadyReplied otherwise.
func conditionalErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return models.ErrNotFound
		}
		return models.ErrAlreadyReplied
	}
	return wrapDynamoErr(op, err)
}

func wrapDynamoErr(op string, err error) error {
	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
		internal   *types.InternalServerError
	)
	switch {
	case errors.As(err, &throughput), errors.As(err, &limit), errors.As(err, &internal),
		errors.Is(err, context.DeadlineExceeded):
		return models.Transient("store "+op, err)
	}
	return fmt.Errorf("[DynamoDB] %s failed: %w", op, err)
}

func keyFor(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrID: &types.AttributeValueMemberS{Value: id},
	}
}

func commentToItem(c *models.Comment) (map[string]types.AttributeValue, error) {
	normalized := *c
	normalized.PublishedAt = c.PublishedAt.UTC()
	normalized.AnalyzedAt = c.AnalyzedAt.UTC()

	item, err := attributevalue.MarshalMap(normalized)
	if err != nil {
		return nil, err
	}
	item[attrPublishedTS] = &types.AttributeValueMemberN{Value: strconv.FormatInt(publishedTS(c.PublishedAt), 10)}
	return item, nil
}

func itemToComment(item map[string]types.AttributeValue) (*models.Comment, error) {
	var c models.Comment
	if err := attributevalue.UnmarshalMap(item, &c); err != nil {
		return nil, fmt.Errorf("[DynamoDB] failed to unmarshal comment: %w", err)
	}
	return &c, nil
}

// EnsureTable creates the comments table and its category index when missing.
// Intended for local DynamoDB.
func EnsureTable(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("[DynamoDB] describe table %s: %w", table, err)
	}

	slog.Info("[DynamoDB] Creating comments table", slog.String("table", table))
	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrCategory), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrPublishedTS), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrID), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(CategoryIndexName),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(attrCategory), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(attrPublishedTS), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] create table %s: %w", table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, 2*time.Minute)
}
