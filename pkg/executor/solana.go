package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// SolanaRPC is the write side of a Solana RPC connection. *rpc.Client implements it.
type SolanaRPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	Close() error
}

type SolanaDialer func(ctx context.Context) (SolanaRPC, error)

func NewSolanaDialer(rpcURL string) SolanaDialer {
	return func(ctx context.Context) (SolanaRPC, error) {
		return rpc.New(rpcURL), nil
	}
}

const keypairEnv = "SOLANA_RELAYER_KEYPAIR_JSON"

// LoadSolanaKeypair reads the relayer keypair from a solana-keygen file, or from the JSON byte array in
// SOLANA_RELAYER_KEYPAIR_JSON if path is empty.
func LoadSolanaKeypair(path string) (solana.PrivateKey, error) {
	if path != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read keypair file %s: %w", path, err)
		}
		return key, nil
	}

	raw := os.Getenv(keypairEnv)
	if raw == "" {
		return nil, fmt.Errorf("no keypair file given and %s is not set", keypairEnv)
	}
	var values []byte
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", keypairEnv, err)
	}
	if len(values) != 64 {
		return nil, fmt.Errorf("invalid private key length %d in %s", len(values), keypairEnv)
	}
	return solana.PrivateKey(values), nil
}

// solanaWriter holds what the two Solana actions share: the relayer keypair and the submit-and-confirm path.
type solanaWriter struct {
	logger *zap.Logger
	dial   SolanaDialer
	signer solana.PrivateKey
	cfg    Config
}

func (w *solanaWriter) owner() solana.PublicKey {
	return w.signer.PublicKey()
}

// ensureATA returns a create instruction for the associated token account of wallet, or nil if it exists.
func (w *solanaWriter) ensureATA(ctx context.Context, client SolanaRPC, wallet, mint solana.PublicKey) (solana.PublicKey, solana.Instruction, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: no associated token address for %s: %w", ErrMalformedIntent, wallet, err)
	}
	_, err = client.GetAccountInfo(ctx, ata)
	switch {
	case err == nil:
		return ata, nil, nil
	case errors.Is(err, rpc.ErrNotFound):
		return ata, associatedtokenaccount.NewCreateInstruction(w.owner(), wallet, mint).Build(), nil
	default:
		return solana.PublicKey{}, nil, fmt.Errorf("failed to look up token account %s: %w", ata, err)
	}
}

// errExpired means a transaction's blockhash expired before it landed. It can never land, so signing a new one is
// safe.
var errExpired = errors.New("blockhash expired before the transaction landed")

func (w *solanaWriter) send(ctx context.Context, client SolanaRPC, action string, logger *zap.Logger, instructions ...solana.Instruction) (*Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	recent, err := client.GetLatestBlockhash(callCtx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	if recent == nil || recent.Value == nil {
		return nil, errors.New("empty blockhash response")
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(w.owner()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build transaction: %w", ErrMalformedIntent, err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.owner()) {
			return &w.signer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign transaction: %w", ErrMalformedIntent, err)
	}

	// The signature is the transaction id, known before anything is sent.
	sig := tx.Signatures[0]
	receipt := &Receipt{TxID: sig.String()}

	_, err = client.SendTransactionWithOpts(callCtx, tx, rpc.TransactionOpts{PreflightCommitment: rpc.CommitmentConfirmed})
	if err != nil {
		if isPreflightFailure(err) {
			// Preflight rejections are never forwarded to the leader.
			if strings.Contains(err.Error(), "Blockhash not found") {
				return nil, fmt.Errorf("failed to send transaction: %w", err)
			}
			return nil, fmt.Errorf("%w: %w", ErrReverted, err)
		}
		logger.Warn("send failed, transaction may have been broadcast", zap.String("tx", receipt.TxID), zap.Error(err))
	} else {
		logger.Info("transaction submitted, waiting for confirmation", zap.String("tx", receipt.TxID))
	}
	return receipt, w.confirm(ctx, client, sig, recent.Value.LastValidBlockHeight, action)
}

func isPreflightFailure(err error) bool {
	return strings.Contains(err.Error(), "simulation failed")
}

// confirm polls the signature status until it is confirmed, failed, expired, or ConfirmTimeout ran out. The wait is
// detached from ctx.
func (w *solanaWriter) confirm(ctx context.Context, client SolanaRPC, sig solana.Signature, lastValid uint64, action string) error {
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.ConfirmTimeout)
	defer cancel()

	start := time.Now()
	ticker := time.NewTicker(w.cfg.ConfirmPoll)
	defer ticker.Stop()

	var lastErr error
	history := false
	for {
		found, err := w.status(waitCtx, client, sig, history)
		switch {
		case err != nil:
			lastErr = err
		case found != nil:
			if found.Err != nil {
				return fmt.Errorf("%w: %s: %v", ErrReverted, sig, found.Err)
			}
			if found.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				found.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				confirmLatency.WithLabelValues(action).Observe(time.Since(start).Seconds())
				return nil
			}
		case !history:
			height, err := client.GetBlockHeight(waitCtx, rpc.CommitmentConfirmed)
			if err != nil {
				lastErr = err
				break
			}
			if height > lastValid {
				// One more look with full history in case it landed right before expiry.
				history = true
				continue
			}
		default:
			return fmt.Errorf("%s: %w", sig, errExpired)
		}

		select {
		case <-waitCtx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w: %s: %w", ErrOutcomeUnknown, sig, lastErr)
			}
			return fmt.Errorf("%w: %s not confirmed within %s", ErrOutcomeUnknown, sig, w.cfg.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}

func (w *solanaWriter) status(ctx context.Context, client SolanaRPC, sig solana.Signature, history bool) (*rpc.SignatureStatusesResult, error) {
	out, err := client.GetSignatureStatuses(ctx, history, sig)
	if err != nil {
		return nil, err
	}
	if len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

// SolanaMint mints the bridged SPL token on Solana for coin locked on Omega.
type SolanaMint struct {
	solanaWriter
	mint solana.PublicKey
}

func NewSolanaMint(logger *zap.Logger, dial SolanaDialer, signer solana.PrivateKey, mint solana.PublicKey, cfg Config) *SolanaMint {
	return &SolanaMint{
		solanaWriter: solanaWriter{logger: logger, dial: dial, signer: signer, cfg: cfg},
		mint:         mint,
	}
}

func (s *SolanaMint) Execute(ctx context.Context, intent *common.TransferIntent) (*Receipt, error) {
	if intent.Kind != common.AssetKindTargetLock {
		return nil, fmt.Errorf("%w: %s is not a lock", ErrMalformedIntent, intent.Kind)
	}
	if intent.Amount == nil || intent.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: no amount", ErrMalformedIntent)
	}
	amount, err := common.OmegaToSolana(intent.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedIntent, err)
	}
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s is below the smallest SPL unit", ErrMalformedIntent, intent.Amount)
	}
	if !amount.IsUint64() {
		return nil, fmt.Errorf("%w: %s does not fit an SPL amount", ErrMalformedIntent, amount)
	}
	recipient, err := solana.PublicKeyFromBase58(strings.TrimSpace(intent.Destination))
	if err != nil {
		return nil, fmt.Errorf("%w: recipient %q: %w", ErrMalformedIntent, intent.Destination, err)
	}

	return run(ctx, s.logger, s.cfg, "solana_mint", intent, func(ctx context.Context, logger *zap.Logger) (*Receipt, error) {
		client, err := s.dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("dialing solana failed: %w", err)
		}
		defer client.Close()

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		ata, create, err := s.ensureATA(callCtx, client, recipient, s.mint)
		cancel()
		if err != nil {
			return nil, err
		}

		var instructions []solana.Instruction
		if create != nil {
			logger.Info("creating recipient token account", zap.Stringer("account", ata))
			instructions = append(instructions, create)
		}
		instructions = append(instructions,
			token.NewMintToInstruction(amount.Uint64(), s.mint, ata, s.owner(), nil).Build())

		logger.Info("minting", zap.Stringer("to", recipient), zap.Stringer("amount", amount))
		return s.send(ctx, client, "solana_mint", logger, instructions...)
	})
}

// SolanaNFTReturn sends a deposited NFT back out of the relayer wallet after its wrapped counterpart was burned.
type SolanaNFTReturn struct {
	solanaWriter
}

func NewSolanaNFTReturn(logger *zap.Logger, dial SolanaDialer, signer solana.PrivateKey, cfg Config) *SolanaNFTReturn {
	return &SolanaNFTReturn{solanaWriter{logger: logger, dial: dial, signer: signer, cfg: cfg}}
}

func (s *SolanaNFTReturn) Execute(ctx context.Context, intent *common.TransferIntent) (*Receipt, error) {
	if intent.Kind != common.AssetKindTargetNFTBurn {
		return nil, fmt.Errorf("%w: %s is not a bridge back", ErrMalformedIntent, intent.Kind)
	}
	mint, err := solana.PublicKeyFromBase58(intent.AssetID)
	if err != nil {
		return nil, fmt.Errorf("%w: mint %q: %w", ErrMalformedIntent, intent.AssetID, err)
	}
	recipient, err := solana.PublicKeyFromBase58(strings.TrimSpace(intent.Destination))
	if err != nil {
		return nil, fmt.Errorf("%w: recipient %q: %w", ErrMalformedIntent, intent.Destination, err)
	}

	return run(ctx, s.logger, s.cfg, "solana_nft_return", intent, func(ctx context.Context, logger *zap.Logger) (*Receipt, error) {
		client, err := s.dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("dialing solana failed: %w", err)
		}
		defer client.Close()

		source, _, err := solana.FindAssociatedTokenAddress(s.owner(), mint)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedIntent, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		dest, create, err := s.ensureATA(callCtx, client, recipient, mint)
		cancel()
		if err != nil {
			return nil, err
		}

		var instructions []solana.Instruction
		if create != nil {
			logger.Info("creating recipient token account", zap.Stringer("account", dest))
			instructions = append(instructions, create)
		}
		instructions = append(instructions,
			token.NewTransferCheckedInstruction(1, 0, source, mint, dest, s.owner(), nil).Build())

		logger.Info("returning NFT", zap.Stringer("mint", mint), zap.Stringer("to", recipient))
		return s.send(ctx, client, "solana_nft_return", logger, instructions...)
	})
}
