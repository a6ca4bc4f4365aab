package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
)

// lamportsPerSOL converts SOL amounts to the chain's native unit.
var lamportsPerSOL = decimal.NewFromInt(1_000_000_000)

// SolanaRPC is the subset of the Solana RPC surface the executor needs.
// Mirrors the real rpc.Client so it can be mocked in tests.
type SolanaRPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// SolanaExecutor settles transactions on Solana by submitting a memo-tagged
// transfer from the service wallet to the transaction's recipient.
type SolanaExecutor struct {
	rpc    SolanaRPC
	signer solana.PrivateKey
	logger *slog.Logger
}

// NewSolanaExecutor creates an executor that signs with the given key.
func NewSolanaExecutor(rpcClient SolanaRPC, signer solana.PrivateKey, logger *slog.Logger) *SolanaExecutor {
	return &SolanaExecutor{rpc: rpcClient, signer: signer, logger: logger}
}

// NewSolanaExecutorFromURL dials the RPC endpoint and loads the signing key
// from a keypair file.
func NewSolanaExecutorFromURL(rpcURL, keypairPath string, logger *slog.Logger) (*SolanaExecutor, error) {
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair: %w", err)
	}
	return NewSolanaExecutor(rpc.New(rpcURL), signer, logger), nil
}

// Execute submits the transfer and returns the transaction signature. The
// transaction amount is interpreted in SOL.
func (e *SolanaExecutor) Execute(ctx context.Context, txn *domain.Transaction) (*Result, error) {
	if txn.Metadata.Recipient == "" {
		return nil, &domain.ValidationError{Field: "recipient", Reason: "required for on-chain settlement"}
	}
	recipient, err := solana.PublicKeyFromBase58(txn.Metadata.Recipient)
	if err != nil {
		return nil, &domain.ValidationError{Field: "recipient", Reason: fmt.Sprintf("invalid solana address: %v", err)}
	}

	lamports := txn.Amount.Mul(lamportsPerSOL).IntPart()
	if lamports <= 0 {
		return nil, &domain.ValidationError{Field: "amount", Reason: "below one lamport"}
	}

	blockhash, err := e.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "solana", Err: fmt.Errorf("get blockhash: %w", err)}
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(
				uint64(lamports),
				e.signer.PublicKey(),
				recipient,
			).Build(),
			memo.NewMemoInstruction([]byte(txn.ID), e.signer.PublicKey()).Build(),
		},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(e.signer.PublicKey()),
	)
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "solana", Err: fmt.Errorf("build transaction: %w", err)}
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(e.signer.PublicKey()) {
			return &e.signer
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "solana", Err: fmt.Errorf("sign transaction: %w", err)}
	}

	sig, err := e.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "solana", Err: fmt.Errorf("send transaction: %w", err)}
	}

	e.logger.Info("settled transaction on solana",
		"transaction_id", txn.ID,
		"recipient", txn.Metadata.Recipient,
		"lamports", lamports,
		"signature", sig.String(),
	)

	return &Result{TxHash: sig.String(), Confirmations: 0}, nil
}
