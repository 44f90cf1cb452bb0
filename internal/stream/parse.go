package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"token-stream-lab/internal/domain"
)

// Event is one parsed feed message: exactly one of Creation or Trade is set.
type Event struct {
	Creation *domain.TokenCreation
	Trade    *domain.TradeEvent
}

// feedMessage is the wire shape of feed events. Creation and trade events
// share most fields; txType discriminates.
type feedMessage struct {
	TxType                string  `json:"txType"`
	Mint                  string  `json:"mint"`
	Name                  string  `json:"name"`
	Symbol                string  `json:"symbol"`
	URI                   string  `json:"uri"`
	TraderPublicKey       string  `json:"traderPublicKey"`
	Signature             string  `json:"signature"`
	InitialBuy            float64 `json:"initialBuy"`
	SolAmount             float64 `json:"solAmount"`
	TokenAmount           float64 `json:"tokenAmount"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
	MarketCapSol          float64 `json:"marketCapSol"`
}

// ParseMessage decodes one feed message. Unknown or non-event payloads
// (subscription acks, server notices) return nil, nil so the caller skips
// them; a malformed event returns an error and is skipped one message deep.
func ParseMessage(data []byte, now time.Time) (*Event, error) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode feed message: %w", err)
	}

	switch msg.TxType {
	case "create":
		if msg.Mint == "" {
			return nil, fmt.Errorf("creation event missing mint")
		}
		return &Event{Creation: &domain.TokenCreation{
			Mint:         msg.Mint,
			Name:         msg.Name,
			Symbol:       msg.Symbol,
			Creator:      msg.TraderPublicKey,
			URI:          msg.URI,
			InitialBuy:   msg.InitialBuy,
			VSolReserves: msg.VSolInBondingCurve,
			VTokReserves: msg.VTokensInBondingCurve,
			MarketCapSol: msg.MarketCapSol,
			Signature:    msg.Signature,
			DiscoveredAt: now.UnixMilli(),
		}}, nil

	case "buy", "sell":
		if msg.Mint == "" {
			return nil, fmt.Errorf("trade event missing mint")
		}
		return &Event{Trade: &domain.TradeEvent{
			Mint:         msg.Mint,
			Side:         msg.TxType,
			Trader:       msg.TraderPublicKey,
			SolAmount:    msg.SolAmount,
			TokenAmount:  msg.TokenAmount,
			VSolReserves: msg.VSolInBondingCurve,
			VTokReserves: msg.VTokensInBondingCurve,
			MarketCapSol: msg.MarketCapSol,
			Signature:    msg.Signature,
			Timestamp:    now.UnixMilli(),
		}}, nil

	default:
		// Subscription acks and notices carry no txType.
		return nil, nil
	}
}

// Outbound command messages.

type command struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

const (
	methodSubscribeNewToken     = "subscribeNewToken"
	methodSubscribeTokenTrade   = "subscribeTokenTrade"
	methodUnsubscribeTokenTrade = "unsubscribeTokenTrade"
)
