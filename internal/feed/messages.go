package feed

import (
	"fmt"

	"price-oracle-lab/internal/ledger"
	"price-oracle-lab/internal/oracle"
)

// UpdateMessage is the JSON frame a publisher sends over the feed socket.
type UpdateMessage struct {
	Symbol      string `json:"symbol"`
	Publisher   string `json:"publisher"`
	Price       int64  `json:"price"`
	Conf        uint64 `json:"conf"`
	Status      string `json:"status"`
	PublishTime int64  `json:"publish_time"`
}

// AckMessage is the JSON frame the server sends back for every update.
type AckMessage struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Update is a decoded, validated publisher update.
type Update struct {
	Symbol      string
	Publisher   ledger.Pubkey
	Price       int64
	Conf        uint64
	Status      uint32
	PublishTime int64
}

// parseStatus maps the wire status string to a price status value.
func parseStatus(s string) (uint32, error) {
	switch s {
	case "trading":
		return oracle.StatusTrading, nil
	case "halted":
		return oracle.StatusHalted, nil
	case "auction":
		return oracle.StatusAuction, nil
	case "unknown", "":
		return oracle.StatusUnknown, nil
	default:
		return 0, fmt.Errorf("unknown price status %q", s)
	}
}

// decode validates an UpdateMessage and converts it to an Update.
func decode(msg UpdateMessage) (Update, error) {
	if msg.Symbol == "" {
		return Update{}, fmt.Errorf("missing symbol")
	}
	pub, err := ledger.ParsePubkey(msg.Publisher)
	if err != nil {
		return Update{}, fmt.Errorf("publisher: %w", err)
	}
	status, err := parseStatus(msg.Status)
	if err != nil {
		return Update{}, err
	}
	if msg.PublishTime <= 0 {
		return Update{}, fmt.Errorf("missing publish_time")
	}
	return Update{
		Symbol:      msg.Symbol,
		Publisher:   pub,
		Price:       msg.Price,
		Conf:        msg.Conf,
		Status:      status,
		PublishTime: msg.PublishTime,
	}, nil
}
