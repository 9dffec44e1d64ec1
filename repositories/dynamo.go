package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"lingo-dm/domain"
	"lingo-dm/errors"
)

const (
	pkPrefixConv = "CONV#"
	skPrefixMsg  = "MSG#"
)

// dynamoAPI is the minimal DynamoDB interface required by DynamoMessageRepository.
// Defined here for testability.
type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoMessageRepository is the hosted alternative to the Badger
// store. One table, PK = CONV#<conversationId>, SK = MSG#<padded
// createdAt>#<messageId>. The sort key embeds the message id, so two
// sends landing on the same millisecond never overwrite each other and
// the partition order stays total.
type DynamoMessageRepository struct {
	api       dynamoAPI
	tableName string
}

func NewDynamoMessageRepository(api dynamoAPI, tableName string) (*DynamoMessageRepository, error) {
	if api == nil {
		return nil, stderrors.New("repositories: dynamo api must not be nil")
	}
	if tableName == "" {
		return nil, stderrors.New("repositories: table name must not be empty")
	}
	return &DynamoMessageRepository{api: api, tableName: tableName}, nil
}

func convPK(conversationID string) string {
	return pkPrefixConv + conversationID
}

func msgSK(createdAt int64, messageID string) string {
	return fmt.Sprintf("%s%019d#%s", skPrefixMsg, createdAt, messageID)
}

// EnsureTable creates the messages table when it does not exist yet.
// Used by local development against a DynamoDB endpoint override.
func (r *DynamoMessageRepository) EnsureTable(ctx context.Context) error {
	_, err := r.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !stderrors.As(err, &notFound) {
		return fmt.Errorf("repositories: describe table: %w", err)
	}
	_, err = r.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(r.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("repositories: create table: %w", err)
	}
	return nil
}

// Append writes one message as a single non-transactional item.
func (r *DynamoMessageRepository) Append(ctx context.Context, message domain.Message) (domain.Message, error) {
	if message.MessageID == "" {
		message.MessageID = uuid.NewString()
	}
	_, err := r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                messageItem(message),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

// QueryRecent reads newest-first so Limit favors the most recent
// messages; a non-zero before bounds the sort key exclusively.
func (r *DynamoMessageRepository) QueryRecent(ctx context.Context, conversationID string, limit int, before int64) ([]domain.Message, error) {
	limit = domain.ClampPageSize(limit)
	in := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}
	if before > 0 {
		// SK comparison is lexicographic; the padded timestamp prefix
		// of the bound excludes every message at createdAt >= before.
		in.KeyConditionExpression = aws.String("PK = :pk AND SK < :before")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":before": &types.AttributeValueMemberS{Value: fmt.Sprintf("%s%019d", skPrefixMsg, before)},
		}
	}

	out, err := r.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	messages := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		message, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repositories: decode item: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func messageItem(message domain.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(message.ConversationID)},
		"SK":             &types.AttributeValueMemberS{Value: msgSK(message.CreatedAt, message.MessageID)},
		"conversationId": &types.AttributeValueMemberS{Value: message.ConversationID},
		"createdAt":      &types.AttributeValueMemberN{Value: strconv.FormatInt(message.CreatedAt, 10)},
		"messageId":      &types.AttributeValueMemberS{Value: message.MessageID},
		"senderId":       &types.AttributeValueMemberS{Value: message.SenderID},
		"receiverId":     &types.AttributeValueMemberS{Value: message.ReceiverID},
		"text":           &types.AttributeValueMemberS{Value: message.Text},
	}
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	conversationID, err := strAttr(item, "conversationId")
	if err != nil {
		return domain.Message{}, err
	}
	messageID, err := strAttr(item, "messageId")
	if err != nil {
		return domain.Message{}, err
	}
	senderID, err := strAttr(item, "senderId")
	if err != nil {
		return domain.Message{}, err
	}
	receiverID, err := strAttr(item, "receiverId")
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Message{}, err
	}
	createdAt, err := intAttr(item, "createdAt")
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ConversationID: conversationID,
		CreatedAt:      createdAt,
		MessageID:      messageID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Text:           text,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}
