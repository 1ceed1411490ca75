// Package streams implements the change feed on top of DynamoDB Streams.
package streams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/lostfound-sync/internal/application/feed"
	"github.com/lostfound-sync/internal/config"
	"github.com/lostfound-sync/internal/domain"
)

const defaultPoll = time.Second

// StreamsAPI is the subset of the DynamoDB Streams client the poller uses.
type StreamsAPI interface {
	DescribeStream(ctx context.Context, in *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, in *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, in *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

// TableAPI resolves a table's stream.
type TableAPI interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// NewClient creates a DynamoDB Streams client, honouring the LocalStack endpoint override.
func NewClient(awsCfg aws.Config, cfg *config.Config) *dynamodbstreams.Client {
	var opts []func(*dynamodbstreams.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *dynamodbstreams.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return dynamodbstreams.NewFromConfig(awsCfg, opts...)
}

// Transport opens one poller per channel. Each poller starts at the latest position of every
// open shard, so only changes made after Open are delivered.
type Transport struct {
	tables  TableAPI
	streams StreamsAPI
	names   map[string]string
	poll    time.Duration
}

// NewTransport maps resource names to table names.
func NewTransport(tables TableAPI, streams StreamsAPI, names map[string]string, poll time.Duration) *Transport {
	if poll <= 0 {
		poll = defaultPoll
	}
	return &Transport{tables: tables, streams: streams, names: names, poll: poll}
}

// Tables builds the resource to table mapping from config.
func Tables(t config.DynamoTables) map[string]string {
	return map[string]string{
		domain.ResourceNotifications: t.Notifications,
		domain.ResourceFoundItems:    t.FoundItems,
		domain.ResourceLostRequests:  t.LostRequests,
	}
}

func (t *Transport) Open(ctx context.Context, resource, filter string, sink feed.Sink) (feed.Channel, error) {
	table, ok := t.names[resource]
	if !ok {
		return nil, fmt.Errorf("resource %q: %w", resource, domain.ErrNotFound)
	}
	f, err := ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	desc, err := t.tables.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}
	if desc.Table == nil || desc.Table.LatestStreamArn == nil {
		return nil, fmt.Errorf("table %s has no stream enabled", table)
	}

	p := &poller{
		api:       t.streams,
		streamArn: *desc.Table.LatestStreamArn,
		filter:    f,
		sink:      sink,
		every:     t.poll,
		iters:     make(map[string]*string),
		seen:      make(map[string]bool),
	}
	if err := p.discover(ctx, streamtypes.ShardIteratorTypeLatest); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ch := &channel{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(ch.done)
		p.run(runCtx)
	}()
	slog.Info("stream channel opened", "table", table, "filter", filter, "shards", len(p.iters))
	return ch, nil
}

type channel struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (c *channel) Close() error {
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

type poller struct {
	api       StreamsAPI
	streamArn string
	filter    Filter
	sink      feed.Sink
	every     time.Duration

	iters map[string]*string // shard id -> next iterator
	seen  map[string]bool
}

// discover picks up shards not seen yet. Shards found at Open start at the latest record; child
// shards of a closed parent start at the beginning so nothing between the two is lost.
func (p *poller) discover(ctx context.Context, start streamtypes.ShardIteratorType) error {
	var last *string
	for {
		out, err := p.api.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             aws.String(p.streamArn),
			ExclusiveStartShardId: last,
		})
		if err != nil {
			return fmt.Errorf("describe stream: %v: %w", err, domain.ErrConnection)
		}
		if out.StreamDescription == nil {
			return nil
		}
		for _, sh := range out.StreamDescription.Shards {
			id := aws.ToString(sh.ShardId)
			if p.seen[id] {
				continue
			}
			closed := sh.SequenceNumberRange != nil && sh.SequenceNumberRange.EndingSequenceNumber != nil
			if start == streamtypes.ShardIteratorTypeLatest && closed {
				p.seen[id] = true
				continue
			}
			it, err := p.api.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
				StreamArn:         aws.String(p.streamArn),
				ShardId:           sh.ShardId,
				ShardIteratorType: start,
			})
			if err != nil {
				return fmt.Errorf("shard iterator %s: %v: %w", id, err, domain.ErrConnection)
			}
			p.seen[id] = true
			p.iters[id] = it.ShardIterator
		}
		last = out.StreamDescription.LastEvaluatedShardId
		if last == nil {
			return nil
		}
	}
}

func (p *poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return
				}
				p.sink.Fail(err)
				return
			}
		}
	}
}

// tick drains one batch from every shard. A closed shard triggers discovery of its children.
func (p *poller) tick(ctx context.Context) error {
	split := false
	for id, it := range p.iters {
		out, err := p.api.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{ShardIterator: it})
		if err != nil {
			return fmt.Errorf("get records %s: %v: %w", id, err, domain.ErrConnection)
		}
		for _, rec := range out.Records {
			c, ok, err := toChange(rec, p.filter)
			if err != nil {
				slog.Warn("dropping stream record", "shard", id, "err", err)
				continue
			}
			if ok {
				p.sink.Change(c)
			}
		}
		if out.NextShardIterator == nil {
			delete(p.iters, id)
			split = true
			continue
		}
		p.iters[id] = out.NextShardIterator
	}
	if split {
		return p.discover(ctx, streamtypes.ShardIteratorTypeTrimHorizon)
	}
	return nil
}
