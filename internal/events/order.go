package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fusionswap/internal/auction"
)

// OrderAccepted is the fusion-order acceptance event emitted on the
// non-EVM leg. The foreign chain reports events as JSON envelopes, so the
// extractor decodes rather than ABI-unpacks.
type OrderAccepted struct {
	Owner                          string          `json:"owner"`
	Resolver                       string          `json:"resolver"`
	SourceAmount                   decimal.Decimal `json:"source_amount"`
	SourceAssetRef                 string          `json:"source_asset_ref"`
	DestinationAssetCommitment     string          `json:"destination_asset_commitment"`
	DestinationRecipientCommitment string          `json:"destination_recipient_commitment"`
	ChainID                        uint64          `json:"chain_id"`
	SecretHash                     string          `json:"secret_hash"`
	InitialAmount                  decimal.Decimal `json:"initial_amount"`
	MinAmount                      decimal.Decimal `json:"min_amount"`
	DecayPerSecond                 decimal.Decimal `json:"decay_per_second"`
	AuctionStartTime               int64           `json:"auction_start_time"`
	CurrentPrice                   decimal.Decimal `json:"current_price"`
}

type orderAcceptedEnvelope struct {
	OrderAccepted *OrderAccepted `json:"order_accepted"`
}

// ParseOrderAccepted decodes a foreign-leg event payload. Payloads that
// are valid JSON but not order acceptances yield ErrNotVisible so callers
// can skip them the same way non-matching logs are skipped.
func ParseOrderAccepted(payload []byte) (*OrderAccepted, error) {
	var env orderAcceptedEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode order acceptance event: %w", err)
	}
	if env.OrderAccepted == nil {
		return nil, ErrNotVisible
	}
	if env.OrderAccepted.SecretHash == "" {
		return nil, fmt.Errorf("decode order acceptance event: missing secret hash")
	}
	return env.OrderAccepted, nil
}

// AuctionParams maps the event's price schedule onto pricer inputs.
func (o *OrderAccepted) AuctionParams() auction.Params {
	return auction.Params{
		Initial:        o.InitialAmount,
		Min:            o.MinAmount,
		DecayPerSecond: o.DecayPerSecond,
		StartTime:      time.Unix(o.AuctionStartTime, 0),
	}
}
