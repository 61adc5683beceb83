package alert

import (
	"fmt"

	"CryptoWatch/internal/model"

	"github.com/shopspring/decimal"
)

// Image mirrors a change-feed record image: numeric fields as strings.
type Image struct {
	Symbol    string `json:"id_symbol"`
	Price     string `json:"price_usd"`
	MarketCap string `json:"market_cap_usd"`
	Volume24h string `json:"volume_24h_usd"`
}

// EventPayload is the serialised form of a ChangeEvent kept in dead letters.
type EventPayload struct {
	Seq      int64  `json:"seq"`
	OldImage *Image `json:"old_image,omitempty"`
	NewImage Image  `json:"new_image"`
}

func image(r model.PriceRecord) Image {
	return Image{
		Symbol:    r.Symbol,
		Price:     r.Price.String(),
		MarketCap: r.MarketCap.String(),
		Volume24h: r.Volume24h.String(),
	}
}

// EncodeEvent converts ev to its payload form.
func EncodeEvent(ev model.ChangeEvent) EventPayload {
	p := EventPayload{Seq: ev.Seq, NewImage: image(ev.New)}
	if ev.Old != nil {
		old := image(*ev.Old)
		p.OldImage = &old
	}
	return p
}

// Batch is an ordered set of change-feed records as delivered by an external change capture.
type Batch struct {
	Records []EventPayload `json:"records"`
}

// DecodeEvent parses a payload back into a ChangeEvent.
func DecodeEvent(p EventPayload) (model.ChangeEvent, error) {
	newRec, err := p.NewImage.record()
	if err != nil {
		return model.ChangeEvent{}, fmt.Errorf("new image: %w", err)
	}
	ev := model.ChangeEvent{Seq: p.Seq, Symbol: newRec.Symbol, New: newRec}
	if p.OldImage != nil {
		oldRec, err := p.OldImage.record()
		if err != nil {
			return model.ChangeEvent{}, fmt.Errorf("old image: %w", err)
		}
		ev.Old = &oldRec
	}
	return ev, nil
}

// DecodeBatch parses every record of b, stopping at the first malformed one.
func DecodeBatch(b Batch) ([]model.ChangeEvent, error) {
	out := make([]model.ChangeEvent, 0, len(b.Records))
	for i, r := range b.Records {
		ev, err := DecodeEvent(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (img Image) record() (model.PriceRecord, error) {
	if img.Symbol == "" {
		return model.PriceRecord{}, fmt.Errorf("missing id_symbol")
	}
	price, err := decimal.NewFromString(img.Price)
	if err != nil {
		return model.PriceRecord{}, fmt.Errorf("price_usd: %w", err)
	}
	mcap, err := decimal.NewFromString(img.MarketCap)
	if err != nil {
		return model.PriceRecord{}, fmt.Errorf("market_cap_usd: %w", err)
	}
	vol, err := decimal.NewFromString(img.Volume24h)
	if err != nil {
		return model.PriceRecord{}, fmt.Errorf("volume_24h_usd: %w", err)
	}
	return model.PriceRecord{Symbol: img.Symbol, Price: price, MarketCap: mcap, Volume24h: vol}, nil
}
