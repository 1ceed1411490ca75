package streams

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/lostfound-sync/internal/application/feed"
)

// Record is a stream image decoded through the dynamodbav tags.
type Record map[string]types.AttributeValue

func (r Record) Decode(v any) error { return attributevalue.UnmarshalMap(r, v) }

// toChange converts a stream record. ok is false when the record does not pass f.
func toChange(rec streamtypes.Record, f Filter) (feed.RawChange, bool, error) {
	if rec.Dynamodb == nil {
		return feed.RawChange{}, false, nil
	}
	newImage, err := attributevalue.FromDynamoDBStreamsMap(rec.Dynamodb.NewImage)
	if err != nil {
		return feed.RawChange{}, false, fmt.Errorf("convert new image: %w", err)
	}
	oldImage, err := attributevalue.FromDynamoDBStreamsMap(rec.Dynamodb.OldImage)
	if err != nil {
		return feed.RawChange{}, false, fmt.Errorf("convert old image: %w", err)
	}

	var c feed.RawChange
	switch rec.EventName {
	case streamtypes.OperationTypeInsert:
		c.Type = feed.TypeInsert
	case streamtypes.OperationTypeModify:
		c.Type = feed.TypeUpdate
	case streamtypes.OperationTypeRemove:
		c.Type = feed.TypeDelete
	default:
		return feed.RawChange{}, false, fmt.Errorf("unknown stream event %q", rec.EventName)
	}

	match := oldImage
	if c.Type != feed.TypeDelete {
		match = newImage
	}
	if !f.Match(match) {
		return feed.RawChange{}, false, nil
	}
	if len(newImage) > 0 {
		c.New = Record(newImage)
	}
	if len(oldImage) > 0 {
		c.Old = Record(oldImage)
	}
	return c, true, nil
}
