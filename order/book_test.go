package order

import (
	"testing"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
)

func TestBookSetGetList(t *testing.T) {
	b := NewBook()
	btc := asset.Asset{ID: 1, Symbol: "btc_usd"}
	eth := asset.Asset{ID: 2, Symbol: "eth_usd"}
	b.Set(&Order{ID: "2", Asset: eth, Amount: decimal.NewFromInt(1), Status: StatusOpen})
	b.Set(&Order{ID: "1", Asset: btc, Amount: decimal.NewFromInt(1), Status: StatusOpen})

	got, ok := b.Get("1")
	if !ok || got.Asset.Symbol != "btc_usd" {
		t.Fatalf("get failed: %+v %v", got, ok)
	}
	list := b.List()
	if len(list) != 2 || list[0].ID != "1" {
		t.Fatalf("unexpected list %+v", list)
	}
	if ids := b.IDs(); len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if eths := b.ByAsset(2); len(eths) != 1 || eths[0].ID != "2" {
		t.Fatalf("unexpected asset filter %+v", eths)
	}
}

func TestBookListReturnsCopies(t *testing.T) {
	b := NewBook()
	b.Set(&Order{ID: "1", Status: StatusOpen})
	b.List()[0].Status = StatusFilled
	got, _ := b.Get("1")
	if got.Status != StatusOpen {
		t.Fatalf("list must not expose internal orders")
	}
}

func TestBookDelete(t *testing.T) {
	b := NewBook()
	b.Set(&Order{ID: "1", Status: StatusOpen})
	if !b.Delete("1") {
		t.Fatalf("expected delete to report existing order")
	}
	if b.Delete("1") {
		t.Fatalf("second delete should report missing order")
	}
	if b.Len() != 0 {
		t.Fatalf("book should be empty")
	}
}
