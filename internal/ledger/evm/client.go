// Package evm adapts an EVM job registry contract to the ledger ports.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
	"github.com/jcmexdev/multihop-creator/internal/core/ports"
)

// Backend is the subset of *ethclient.Client the adapter uses.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type Config struct {
	RPCURL        string
	ChainID       int64
	PrivateKey    string
	Registry      string
	PollInterval  time.Duration
	BlockLookback uint64
	OutputBaseURL string
}

// Client implements ports.Ledger, ports.LogSource and ports.OutputReader.
type Client struct {
	backend  Backend
	abi      abi.ABI
	registry common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int

	pollInterval  time.Duration
	lookback      uint64
	outputBaseURL string

	closeFn func()

	// Serializes nonce allocation.
	sendMu sync.Mutex
}

var (
	_ ports.Ledger       = (*Client)(nil)
	_ ports.LogSource    = (*Client)(nil)
	_ ports.OutputReader = (*Client)(nil)
)

// Dial connects to cfg.RPCURL.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}
	c, err := New(ec, cfg)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closeFn = ec.Close
	return c, nil
}

// New builds a client over an existing backend.
func New(b Backend, cfg Config) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("evm: parse abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, faults.Configf("invalid private key: %v", err)
	}
	if !common.IsHexAddress(cfg.Registry) {
		return nil, faults.Configf("invalid registry address %q", cfg.Registry)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &Client{
		backend:       b,
		abi:           parsed,
		registry:      common.HexToAddress(cfg.Registry),
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		chainID:       big.NewInt(cfg.ChainID),
		pollInterval:  cfg.PollInterval,
		lookback:      cfg.BlockLookback,
		outputBaseURL: strings.TrimRight(cfg.OutputBaseURL, "/"),
	}, nil
}

// Address is the account submissions are sent from.
func (c *Client) Address() common.Address { return c.from }

func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// SubmitMultihop signs and sends one createMultihopJob transaction and waits
// for its receipt until ctx expires.
func (c *Client) SubmitMultihop(ctx context.Context, steps []entity.StepSpec, total *big.Int) (*entity.Receipt, error) {
	params := make([]jobParams, len(steps))
	for i, s := range steps {
		params[i] = jobParams{
			Provider:         common.HexToAddress(s.Provider),
			Budget:           s.Budget,
			Description:      s.Description,
			AcceptDeadline:   uint64(s.AcceptDeadline.Unix()),
			CompleteDeadline: uint64(s.CompleteDeadline.Unix()),
		}
	}
	data, err := c.abi.Pack(methodCreateMultihop, params)
	if err != nil {
		return nil, fmt.Errorf("evm: pack %s: %w", methodCreateMultihop, err)
	}

	tx, err := c.send(ctx, total, data)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "transaction sent", "tx_hash", tx.Hash().Hex(), "nonce", tx.Nonce())

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: tx %s", faults.ErrSubmissionReverted, tx.Hash().Hex())
	}

	return &entity.Receipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Events:      c.decodeReceiptLogs(receipt.Logs),
	}, nil
}

func (c *Client) send(ctx context.Context, value *big.Int, data []byte) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("evm: nonce: %w", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: gas tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.from,
		To:    &c.registry,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("evm: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas/5,
		To:        &c.registry,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("evm: sign: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("evm: send: %w", err)
	}
	return signed, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			slog.WarnContext(ctx, "receipt lookup failed", "tx_hash", hash.Hex(), "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("evm: wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// decodeReceiptLogs returns the registry events of a receipt in log-index order.
func (c *Client) decodeReceiptLogs(logs []*types.Log) []entity.LedgerEvent {
	sorted := append([]*types.Log(nil), logs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	events := make([]entity.LedgerEvent, 0, len(sorted))
	for _, l := range sorted {
		if ev, ok := c.decodeLog(*l); ok {
			events = append(events, ev)
		}
	}
	return events
}

// decodeLog maps a registry log to an event. The id lives in the last
// indexed topic: creation events index the user first.
func (c *Client) decodeLog(l types.Log) (entity.LedgerEvent, bool) {
	if l.Removed || l.Address != c.registry || len(l.Topics) == 0 {
		return entity.LedgerEvent{}, false
	}

	var name entity.LedgerEventName
	var idTopic int
	switch l.Topics[0] {
	case c.abi.Events[string(entity.EventCreatedMultihop)].ID:
		name, idTopic = entity.EventCreatedMultihop, 2
	case c.abi.Events[string(entity.EventCreatedJob)].ID:
		name, idTopic = entity.EventCreatedJob, 2
	case c.abi.Events[string(entity.EventAcceptedJob)].ID:
		name, idTopic = entity.EventAcceptedJob, 1
	case c.abi.Events[string(entity.EventCompletedJob)].ID:
		name, idTopic = entity.EventCompletedJob, 1
	default:
		return entity.LedgerEvent{}, false
	}
	if len(l.Topics) <= idTopic {
		return entity.LedgerEvent{}, false
	}
	return entity.LedgerEvent{Name: name, ID: l.Topics[idTopic].Hex(), StepIndex: -1}, true
}

// Watch polls the registry logs of kind from BlockLookback blocks back and
// delivers one batch per poll that found anything. It returns on the first
// RPC failure or when ctx is done.
func (c *Client) Watch(ctx context.Context, kind entity.NotificationKind, deliver func([]entity.Notification)) error {
	var eventName entity.LedgerEventName
	switch kind {
	case entity.KindAccepted:
		eventName = entity.EventAcceptedJob
	case entity.KindCompleted:
		eventName = entity.EventCompletedJob
	default:
		return fmt.Errorf("evm: unknown notification kind %q", kind)
	}
	topic := c.abi.Events[string(eventName)].ID

	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("evm: block number: %w", err)
	}
	from := uint64(0)
	if head > c.lookback {
		from = head - c.lookback
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		latest, err := c.backend.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("evm: block number: %w", err)
		}
		if latest >= from {
			logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(from),
				ToBlock:   new(big.Int).SetUint64(latest),
				Addresses: []common.Address{c.registry},
				Topics:    [][]common.Hash{{topic}},
			})
			if err != nil {
				return fmt.Errorf("evm: filter %s logs [%d,%d]: %w", eventName, from, latest, err)
			}

			batch := make([]entity.Notification, 0, len(logs))
			for _, l := range logs {
				ev, ok := c.decodeLog(l)
				if !ok || ev.Name != eventName {
					continue
				}
				batch = append(batch, entity.Notification{Kind: kind, JobID: ev.ID, StepIndex: -1})
			}
			if len(batch) > 0 {
				deliver(batch)
			}
			from = latest + 1
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReadStepOutput checks the job exists on the registry and returns its
// output reference.
func (c *Client) ReadStepOutput(ctx context.Context, jobID string) (string, error) {
	raw := common.FromHex(jobID)
	if len(raw) != common.HashLength {
		return "", fmt.Errorf("%w: malformed job id %q", faults.ErrOutputRetrieval, jobID)
	}

	data, err := c.abi.Pack(methodGetJob, common.BytesToHash(raw))
	if err != nil {
		return "", fmt.Errorf("evm: pack %s: %w", methodGetJob, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.registry, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("%w: getJob %s: %v", faults.ErrOutputRetrieval, jobID, err)
	}
	vals, err := c.abi.Unpack(methodGetJob, out)
	if err != nil || len(vals) != 1 {
		return "", fmt.Errorf("%w: decode getJob %s: %v", faults.ErrOutputRetrieval, jobID, err)
	}
	job := *abi.ConvertType(vals[0], new(jobRecord)).(*jobRecord)
	if job.Creator == (common.Address{}) {
		return "", fmt.Errorf("%w: job %s not found", faults.ErrOutputRetrieval, jobID)
	}

	slog.DebugContext(ctx, "job state read", "job_id", jobID, "state", job.State, "provider", job.Provider.Hex())
	return c.outputBaseURL + "/" + jobID, nil
}
