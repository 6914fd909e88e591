package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/defistate/defistate-migrator-go/chains/ethereum"
	"github.com/defistate/defistate-migrator-go/cmd/migrate/config"
	"github.com/defistate/defistate-migrator-go/engine"
	"github.com/defistate/defistate-migrator-go/migrator"
	"github.com/defistate/defistate-migrator-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// step is what the run loop does after a recalculation.
type step uint8

const (
	stepWait step = iota
	stepPermit
	stepApprove
	stepSubmit
	stepDone
)

func (s step) String() string {
	switch s {
	case stepWait:
		return "wait"
	case stepPermit:
		return "permit"
	case stepApprove:
		return "approve"
	case stepSubmit:
		return "submit"
	case stepDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// nextStep picks the command to issue for a snapshot. Nothing is requested
// while a range is invalid, the balance is empty or a transaction is pending.
func nextStep(snap migrator.Snapshot, approval migrator.ApprovalState, exec migrator.ExecutionState, usePermit bool) step {
	switch exec {
	case migrator.Succeeded:
		return stepDone
	case migrator.Pending:
		return stepWait
	case migrator.Confirming:
		return stepSubmit
	}
	if !snap.Complete() || snap.Balance == nil || snap.Balance.Sign() == 0 {
		return stepWait
	}
	if approval != migrator.NotApproved {
		return stepWait
	}
	if usePermit && snap.Venue == migrator.VenueCanonical {
		return stepPermit
	}
	return stepApprove
}

// app wires the chain client into a migration session.
type app struct {
	cfg     *config.MigrateConfig
	client  *ethereum.Client
	session *migrator.Session
	account common.Address
	view    *renderer
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg *config.MigrateConfig, logger *slog.Logger, reg prometheus.Registerer, out io.Writer) (*app, error) {
	deployment, err := cfg.ChainDeployment()
	if err != nil {
		return nil, err
	}

	opts := []ethereum.Option{ethereum.WithGasBuffer(cfg.GasBufferPercent)}
	if key := cfg.PrivateKey(); key != "" {
		signer, err := ethereum.NewKeySigner(key)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key from %s: %w", cfg.PrivateKeyEnv, err)
		}
		opts = append(opts, ethereum.WithSigner(signer))
	}

	client, err := ethereum.Dial(ctx, cfg.RPCURL, ethereum.Config{
		Deployment: deployment,
		Logger:     logger.With("component", "ethereum"),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	account := client.Account()
	if configured, ok := cfg.AccountAddress(); ok {
		if account != (common.Address{}) && account != configured {
			client.Close()
			return nil, fmt.Errorf("configured account %s does not match signing key %s", configured.Hex(), account.Hex())
		}
		account = configured
	}
	if account == (common.Address{}) {
		client.Close()
		return nil, errors.New("an account or a signing key is required")
	}

	session, err := migrator.NewSession(migrator.SessionConfig{
		Pair:       cfg.PairAddress(),
		Deployment: deployment,
		Reserves:   client,
		Pools:      client,
		Allowances: client,
		Submitter:  client,
		Observer:   client,
		Policy:     cfg.Policy,
		Logger:     logger.With("component", "migrator"),
		Registry:   reg,
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	tokens, err := tokenregistry.NewRegistry(client.TokenMetadata)
	if err != nil {
		client.Close()
		return nil, err
	}
	pair, err := client.GetPair(ctx, cfg.PairAddress())
	if err != nil {
		client.Close()
		return nil, err
	}
	token0, token1, err := tokens.Pair(ctx, pair.Token0, pair.Token1)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		client:  client,
		session: session,
		account: account,
		view:    &renderer{w: out, token0: token0, token1: token1, color: true},
		logger:  logger,
	}, nil
}

func (a *app) Close() {
	a.client.Close()
}

// network reads the current head unless the stream already supplied one.
func (a *app) network(ctx context.Context, head *engine.BlockSummary) (engine.NetworkContext, error) {
	net, err := a.client.Network(ctx, a.account)
	if err != nil {
		return engine.NetworkContext{}, err
	}
	if head != nil {
		net.Block = *head
	}
	return net, nil
}

// quote recalculates once and prints the snapshot.
func (a *app) quote(ctx context.Context) error {
	net, err := a.network(ctx, nil)
	if err != nil {
		return err
	}
	snap, err := a.session.Recalculate(ctx, net, a.cfg.Params())
	if err != nil {
		return err
	}
	a.view.Snapshot(snap)
	return nil
}

// advance recalculates on head and issues at most one command. It reports
// true once the migration succeeded.
func (a *app) advance(ctx context.Context, head engine.BlockSummary, submit bool) (bool, error) {
	net, err := a.network(ctx, &head)
	if err != nil {
		return false, err
	}
	snap, err := a.session.Recalculate(ctx, net, a.cfg.Params())
	if err != nil {
		return false, err
	}
	a.view.Snapshot(snap)

	approval, exec := a.session.State()
	next := nextStep(snap, approval, exec, a.cfg.UsePermit)
	a.logger.Debug("Next step", "block", head.Number, "step", next.String())

	if !submit {
		return next == stepDone, nil
	}

	switch next {
	case stepPermit:
		err = a.session.RequestPermit(ctx, net)
	case stepApprove:
		err = a.session.RequestApproval(ctx, net)
	case stepSubmit:
		var hash common.Hash
		hash, err = a.session.SubmitMigration(ctx, net)
		if err == nil {
			a.logger.Info("Migration submitted", "tx", hash.Hex())
		}
	case stepDone:
		a.logger.Info("Migration succeeded", "pair", a.cfg.PairAddress().Hex())
		return true, nil
	}
	if err != nil && a.session.Failure() != nil {
		a.logger.Warn("Migration attempt failed", "reason", a.session.Failure())
	}
	return false, err
}
