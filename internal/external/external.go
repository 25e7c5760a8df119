// Package external declares the narrow, capability-shaped interfaces the
// core depends on for every collaborator spec.md places out of scope: the
// blockchain client, the bank (PIX) client, object storage, and the
// email/Trello notification sinks. The core owns none of their wire
// formats; it only calls these interfaces and classifies the errors they
// return via internal/apperr.
package external

import "context"

// TxStatus is the verify_status vocabulary spec.md §6 names for a
// broadcast transaction.
type TxStatus string

const (
	TxSuccess               TxStatus = "Success"
	TxPending               TxStatus = "Pending"
	TxAbortByPostCondition  TxStatus = "AbortByPostCondition"
	TxAbortByResponse       TxStatus = "AbortByResponse"
	TxDroppedReplaceByFee   TxStatus = "DroppedReplaceByFee"
	TxUnknown               TxStatus = "Unknown"
)

// Terminal reports whether s is a final, non-retryable on-chain verdict.
// Pending and Unknown are not terminal: the verifier is expected to poll
// again.
func (s TxStatus) Terminal() bool {
	switch s {
	case TxSuccess, TxAbortByPostCondition, TxAbortByResponse, TxDroppedReplaceByFee:
		return true
	default:
		return false
	}
}

// Failed reports whether s is a terminal failure (as opposed to the
// terminal success case).
func (s TxStatus) Failed() bool {
	return s.Terminal() && s != TxSuccess
}

// BroadcastResult is the shape the chain client returns for a completed
// or pending broadcast.
type BroadcastResult struct {
	TxID      string
	Sender    string
	Recipient string
	Amount    int64
	Currency  string
	PriceCents int64
}

// DepositResult is the shape returned by ChainClient.Deposit: a narrower
// broadcast confirmation carrying only a txid and settled amount.
type DepositResult struct {
	TxID   string
	Amount int64
}

// ChainClient is the Bolt/Stacks on-chain seam, exactly as spec.md §6
// names it: Broadcast, GetDetail, ValidateAndBroadcast, VerifyStatus,
// Deposit. The core treats every network error as retryable
// (apperr.ExternalRetryable); only a terminal TxStatus marks an
// aggregate Failed.
type ChainClient interface {
	// Broadcast submits a serialized transaction and returns its
	// settled shape once known.
	Broadcast(ctx context.Context, serializedTx []byte) (BroadcastResult, error)
	// GetDetail inspects a serialized transaction without broadcasting
	// it — same shape as Broadcast, minus the txid.
	GetDetail(ctx context.Context, serializedTx []byte) (BroadcastResult, error)
	// ValidateAndBroadcast rejects serializedTx unless it pays
	// expectedRecipient exactly expectedAmount, then broadcasts it.
	ValidateAndBroadcast(ctx context.Context, serializedTx []byte, expectedRecipient string, expectedAmount int64) (txID string, err error)
	// VerifyStatus polls the chain for txID's current status.
	VerifyStatus(ctx context.Context, txID string) (TxStatus, error)
	// Deposit broadcasts a deposit transaction crediting receiver.
	Deposit(ctx context.Context, serializedTx []byte, receiver string) (DepositResult, error)
}

// PixReceipt is one row of the bank's PIX receipt query, matching
// spec.md §6's `{end_to_end_id, valor, horario}` shape. Valor arrives
// from the bank as a "NN.NN" decimal string; callers convert to minor
// units via internal/domain/pricing.
type PixReceipt struct {
	EndToEndID string
	Valor      string
	Horario    string
}

// BankAuth is the token spec.md §6 requires scoped to
// gn.pix.evp.read, gn.pix.evp.write, pix.read.
type BankAuth struct {
	AccessToken string
	Scope       string
	TTLSeconds  int64
}

// BankClient is the EFI Pay seam: Authenticate, GetOrCreateRandomPixKey,
// QueryPix, exactly as spec.md §6 names them.
type BankClient interface {
	Authenticate(ctx context.Context, clientID, clientSecret string, p12Cert []byte) (BankAuth, error)
	GetOrCreateRandomPixKey(ctx context.Context, accessToken string) (pixKey string, err error)
	QueryPix(ctx context.Context, accessToken string, startISO, endISO string) ([]PixReceipt, error)
}

// ObjectStorage is the thin GCS seam storing seller PKCS#12 certificates.
type ObjectStorage interface {
	Upload(ctx context.Context, objectURI string, data []byte) error
	Download(ctx context.Context, objectURI string) ([]byte, error)
}

// Notifier is a narrow outbound-message sink. Both the email and Trello
// adapters implement it; a send failure surfaces as apperr.ExternalRetryable
// so the event dispatcher reschedules the consumer instead of crashing.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}
