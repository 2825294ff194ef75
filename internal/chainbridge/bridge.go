// Package chainbridge implements component C: it subscribes to the escrow
// contract's Deposited/WithdrawalExecuted topics, ingests them into the
// escrow ledger idempotently, and exposes an on-demand reprocess over a
// block range. It also implements withdrawal.DigestComputer, the pure
// contract call the withdrawal signer depends on.
package chainbridge

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/escrow"
)

// contractABI carries only the surface this backend calls or observes: two
// events and one pure view function (§6 "Outbound chain interface").
const contractABI = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"player","type":"address"},{"indexed":true,"name":"depositor","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}],"name":"Deposited","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"player","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"nonce","type":"uint256"}],"name":"WithdrawalExecuted","type":"event"},
	{"constant":true,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amountWei","type":"uint256"},{"name":"expiry","type":"uint256"}],"name":"computeWithdrawDigest","outputs":[{"name":"digest","type":"bytes32"},{"name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var gweiDivisor = uint256.NewInt(1_000_000_000)

type Bridge struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
	ledger  *escrow.Ledger
	log     zerolog.Logger

	depositedTopic common.Hash
	executedTopic  common.Hash
}

// Dial connects to rpcURL and binds to contractAddress. An empty
// contractAddress disables the bridge entirely (§6 "absent disables it"),
// in which case Dial returns a nil *Bridge and a nil error.
func Dial(rpcURL, contractAddress string, ledger *escrow.Ledger, logger zerolog.Logger) (*Bridge, error) {
	if contractAddress == "" {
		return nil, nil
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamTransient, "dial chain RPC", err)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "parse contract ABI", err)
	}
	return &Bridge{
		client:         client,
		address:        common.HexToAddress(contractAddress),
		abi:            parsed,
		ledger:         ledger,
		log:            logger.With().Str("component", "chainbridge").Logger(),
		depositedTopic: parsed.Events["Deposited"].ID,
		executedTopic:  parsed.Events["WithdrawalExecuted"].ID,
	}, nil
}

// ComputeWithdrawDigest implements withdrawal.DigestComputer via an
// eth_call against the contract's pure view function.
func (b *Bridge) ComputeWithdrawDigest(ctx context.Context, from, to common.Address, amountWei *big.Int, expiry int64) ([32]byte, *big.Int, error) {
	input, err := b.abi.Pack("computeWithdrawDigest", from, to, amountWei, big.NewInt(expiry))
	if err != nil {
		return [32]byte{}, nil, apperr.Wrap(apperr.InternalFatal, "pack computeWithdrawDigest call", err)
	}
	out, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &b.address, Data: input}, nil)
	if err != nil {
		return [32]byte{}, nil, apperr.Wrap(apperr.UpstreamTransient, "call computeWithdrawDigest", err)
	}
	values, err := b.abi.Unpack("computeWithdrawDigest", out)
	if err != nil || len(values) != 2 {
		return [32]byte{}, nil, apperr.Wrap(apperr.InvariantBreak, "unpack computeWithdrawDigest result", err)
	}
	digestBytes, ok := values[0].([32]byte)
	if !ok {
		return [32]byte{}, nil, apperr.Invariantf("computeWithdrawDigest returned unexpected digest shape")
	}
	nonce, ok := values[1].(*big.Int)
	if !ok {
		return [32]byte{}, nil, apperr.Invariantf("computeWithdrawDigest returned unexpected nonce shape")
	}
	return digestBytes, nonce, nil
}

// ContractBalanceGwei reads the contract's native balance and floor-
// divides it to gwei, feeding the solvency view (§4.9).
func (b *Bridge) ContractBalanceGwei(ctx context.Context) (*big.Int, error) {
	wei, err := b.client.BalanceAt(ctx, b.address, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamTransient, "read contract balance", err)
	}
	return weiToGwei(wei), nil
}

// Run subscribes to the contract's logs and ingests each one into the
// ledger until ctx is cancelled or the subscription reports an error, which
// it logs before returning without resubscribing. It falls back to polling every 5 seconds
// if the RPC endpoint does not support log subscriptions (common for plain
// HTTP endpoints, per the corpus's indexer precedent).
func (b *Bridge) Run(ctx context.Context) {
	query := ethereum.FilterQuery{Addresses: []common.Address{b.address}}
	logs := make(chan types.Log)
	sub, err := b.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		b.log.Warn().Err(err).Msg("log subscription unavailable, falling back to polling")
		b.poll(ctx)
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			b.log.Error().Err(err).Msg("chain log subscription dropped")
			return
		case vLog := <-logs:
			if err := b.ingest(ctx, vLog); err != nil {
				b.log.Error().Err(err).Uint64("blockNumber", vLog.BlockNumber).Msg("ingest chain log")
			}
		}
	}
}

func (b *Bridge) poll(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var lastBlock uint64
	if head, err := b.client.BlockNumber(ctx); err == nil {
		lastBlock = head
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head, err := b.client.BlockNumber(ctx)
			if err != nil {
				b.log.Warn().Err(err).Msg("poll block number")
				continue
			}
			if head <= lastBlock {
				continue
			}
			summary, err := b.ReprocessEvents(ctx, lastBlock+1, &head, false)
			if err != nil {
				b.log.Warn().Err(err).Msg("poll reprocess")
				continue
			}
			lastBlock = head
			b.log.Debug().Int("processed", summary.Counts[StatusProcessed]).Msg("poll tick")
		}
	}
}

// Status classifies one reprocessed log for the reprocess summary.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

type EventResult struct {
	TxHash      string
	BlockNumber uint64
	Kind        string
	Status      Status
	Error       string `json:"error,omitempty"`
}

type Summary struct {
	Results []EventResult
	Counts  map[Status]int
}

// ReprocessEvents implements §4.3's on-demand reprocess API: it queries
// both topic filters over [fromBlock, toBlock] (toBlock nil means current
// head) and applies whatever the ledger has not yet idempotently recorded.
// dryRun reports what it would do without mutating the ledger.
func (b *Bridge) ReprocessEvents(ctx context.Context, fromBlock uint64, toBlock *uint64, dryRun bool) (*Summary, error) {
	to := toBlock
	if to == nil {
		head, err := b.client.BlockNumber(ctx)
		if err != nil {
			return nil, apperr.Wrap(apperr.UpstreamTransient, "fetch chain head", err)
		}
		to = &head
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(*to),
		Addresses: []common.Address{b.address},
		Topics:    [][]common.Hash{{b.depositedTopic, b.executedTopic}},
	}
	logs, err := b.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamTransient, "filter chain logs", err)
	}

	summary := &Summary{Counts: map[Status]int{}}
	for _, vLog := range logs {
		result := EventResult{TxHash: vLog.TxHash.Hex(), BlockNumber: vLog.BlockNumber}
		if dryRun {
			kind, already, err := b.classify(ctx, vLog)
			result.Kind = kind
			if err != nil {
				result.Status, result.Error = StatusError, err.Error()
			} else if already {
				result.Status = StatusSkipped
			} else {
				result.Status = StatusProcessed
			}
		} else if err := b.ingest(ctx, vLog); err != nil {
			result.Status, result.Error = StatusError, err.Error()
		} else {
			result.Status = StatusProcessed
		}
		summary.Counts[result.Status]++
		summary.Results = append(summary.Results, result)
	}
	return summary, nil
}

func (b *Bridge) classify(ctx context.Context, vLog types.Log) (string, bool, error) {
	if len(vLog.Topics) == 0 {
		return "", false, apperr.Invariantf("log with no topics")
	}
	var kind string
	var domainKind domain.EventKind
	switch vLog.Topics[0] {
	case b.depositedTopic:
		kind, domainKind = "deposit", domain.KindDeposit
	case b.executedTopic:
		kind, domainKind = "withdrawal_executed", domain.KindWithdrawalExecuted
	default:
		return "", false, apperr.Invariantf("unrecognized log topic %s", vLog.Topics[0].Hex())
	}
	already, err := b.ledger.AlreadyIngested(ctx, domainKind, vLog.TxHash.Hex())
	return kind, already, err
}

func (b *Bridge) ingest(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) == 0 {
		return apperr.Invariantf("log with no topics")
	}
	header, err := b.client.HeaderByNumber(ctx, new(big.Int).SetUint64(vLog.BlockNumber))
	if err != nil {
		return apperr.Wrap(apperr.UpstreamTransient, "fetch block header", err)
	}
	blockTs := time.Unix(int64(header.Time), 0).UTC()

	switch vLog.Topics[0] {
	case b.depositedTopic:
		if len(vLog.Topics) < 2 {
			return apperr.Invariantf("Deposited log missing indexed player topic")
		}
		player := common.HexToAddress(vLog.Topics[1].Hex())
		values, err := b.abi.Unpack("Deposited", vLog.Data)
		if err != nil || len(values) != 1 {
			return apperr.Wrap(apperr.InvariantBreak, "unpack Deposited data", err)
		}
		amountWei, ok := values[0].(*big.Int)
		if !ok {
			return apperr.Invariantf("Deposited amount has unexpected shape")
		}
		_, err = b.ledger.Credit(ctx, player.Hex(), weiToGwei(amountWei), vLog.TxHash.Hex(), int64(vLog.BlockNumber), blockTs)
		return err

	case b.executedTopic:
		if len(vLog.Topics) < 2 {
			return apperr.Invariantf("WithdrawalExecuted log missing indexed player topic")
		}
		player := common.HexToAddress(vLog.Topics[1].Hex())
		values, err := b.abi.Unpack("WithdrawalExecuted", vLog.Data)
		if err != nil || len(values) != 2 {
			return apperr.Wrap(apperr.InvariantBreak, "unpack WithdrawalExecuted data", err)
		}
		amountWei, ok := values[0].(*big.Int)
		if !ok {
			return apperr.Invariantf("WithdrawalExecuted amount has unexpected shape")
		}
		nonce, ok := values[1].(*big.Int)
		if !ok {
			return apperr.Invariantf("WithdrawalExecuted nonce has unexpected shape")
		}
		_, err = b.ledger.ApplyWithdrawalExecuted(ctx, player.Hex(), weiToGwei(amountWei), nonce, vLog.TxHash.Hex(), int64(vLog.BlockNumber), blockTs,
			func(stored, event *big.Int) {
				b.log.Error().Str("wallet", strings.ToLower(player.Hex())).Str("storedNonce", stored.String()).Str("eventNonce", event.String()).
					Msg("withdrawal nonce mismatch; applying anyway, chain is authoritative")
			})
		return err

	default:
		return apperr.Invariantf("unrecognized log topic %s", vLog.Topics[0].Hex())
	}
}

// weiToGwei floor-divides by 10^9 using 256-bit arithmetic, matching the
// contract's native integer width (§6 "floor-dividing by 10⁹").
func weiToGwei(wei *big.Int) *big.Int {
	w, overflow := uint256.FromBig(wei)
	if overflow {
		w = new(uint256.Int).SetAllOne()
	}
	w.Div(w, gweiDivisor)
	return w.ToBig()
}
