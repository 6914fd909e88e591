package heads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-migrator-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace and NewHeadsSubscriptionMethod name the standard head subscription.
	RpcNamespace               = "eth"
	NewHeadsSubscriptionMethod = "newHeads"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// headJSON is the part of a newHeads notification the migrator reads.
type headJSON struct {
	Number    *hexutil.Big   `json:"number"`
	Hash      common.Hash    `json:"hash"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// HeadProcessor
// -----------------------------------------------------------------------------

// HeadProcessor decodes head notifications, drops stale ones and publishes the
// rest. When the consumer falls behind, older heads are discarded so the
// newest one is always delivered.
type HeadProcessor struct {
	last   *engine.BlockSummary
	headCh chan engine.BlockSummary
	logger Logger
	now    func() time.Time
}

// NewHeadProcessor creates a pure logic processor without networking.
func NewHeadProcessor(logger Logger, bufferSize uint) *HeadProcessor {
	return &HeadProcessor{
		logger: logger,
		headCh: make(chan engine.BlockSummary, bufferSize),
		now:    time.Now,
	}
}

// Heads returns a read-only channel of new heads.
func (hp *HeadProcessor) Heads() <-chan engine.BlockSummary {
	return hp.headCh
}

// ProcessMessage accepts one raw notification. A head at or below the last
// published number is ignored unless its hash differs, which signals a reorg.
func (hp *HeadProcessor) ProcessMessage(rawData json.RawMessage) error {
	var head headJSON
	if err := json.Unmarshal(rawData, &head); err != nil {
		return fmt.Errorf("failed to unmarshal head: %w", err)
	}
	if head.Number == nil {
		return errors.New("head without number")
	}

	block := engine.BlockSummary{
		Number:     head.Number.ToInt(),
		Hash:       head.Hash,
		Timestamp:  uint64(head.Timestamp),
		ReceivedAt: hp.now().UnixNano(),
	}

	if hp.last != nil {
		switch cmp := block.Number.Cmp(hp.last.Number); {
		case cmp < 0, cmp == 0 && block.Hash == hp.last.Hash:
			hp.logger.Debug("Ignoring stale head", "block", block.Number, "last", hp.last.Number)
			return nil
		case cmp == 0:
			hp.logger.Warn("Head replaced at same height", "block", block.Number, "hash", block.Hash)
		}
	}

	hp.last = &block
	hp.publish(block)
	return nil
}

func (hp *HeadProcessor) publish(block engine.BlockSummary) {
	for {
		select {
		case hp.headCh <- block:
			hp.logger.Debug("Head processed", "block", block.Number, "timestamp", block.Timestamp)
			return
		default:
		}
		select {
		case dropped := <-hp.headCh:
			hp.logger.Warn("Head buffer full, discarding older head...", "block", dropped.Number)
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client keeps a newHeads subscription alive and feeds the processor.
type Client struct {
	processor *HeadProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled. It runs until ctx
// is cancelled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewHeadProcessor(cfg.Logger, cfg.BufferSize),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Heads delegates to the processor's channel.
func (c *Client) Heads() <-chan engine.BlockSummary {
	return c.processor.Heads()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Head client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, NewHeadsSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for heads...")
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing head", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				return errors.New("subscription closed")
			}
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
