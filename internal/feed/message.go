package feed

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// update is one asks/bids pair from the wire. A nil side means the field
// was absent or null.
type update struct {
	Asks *[]domain.Delta `json:"asks"`
	Bids *[]domain.Delta `json:"bids"`
}

func (u update) complete() bool {
	return u.Asks != nil && u.Bids != nil
}

// wireMessage accepts both the flat {"asks":..,"bids":..} form and the
// exchange envelope {"arg":..,"data":[{"asks":..,"bids":..}]}.
type wireMessage struct {
	update
	Event string   `json:"event"`
	Data  []update `json:"data"`
}

// decodeMessage returns the book updates carried by a frame, in order.
// Frames without both sides (acks, heartbeats) yield no updates and no error.
func decodeMessage(data []byte) ([]update, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("feed: decode message: %w", err)
	}
	var out []update
	if msg.complete() {
		out = append(out, msg.update)
	}
	for _, u := range msg.Data {
		if u.complete() {
			out = append(out, u)
		}
	}
	return out, nil
}

// Subscription describes the request sent once per connection.
type Subscription struct {
	Op      string
	Channel string
	// Raw, when set, is sent verbatim instead of the generated request.
	Raw string
}

type subscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

// payload renders the request for symbol.
func (s Subscription) payload(symbol string) ([]byte, error) {
	if s.Raw != "" {
		if !json.Valid([]byte(s.Raw)) {
			return nil, fmt.Errorf("feed: raw subscription is not valid JSON")
		}
		return []byte(s.Raw), nil
	}
	return json.Marshal(subscribeRequest{
		Op:   s.Op,
		Args: []subscribeArg{{Channel: s.Channel, InstID: symbol}},
	})
}
