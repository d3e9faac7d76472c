package ledger

import (
	"testing"

	"ai-trader-arena/internal/types"
)

func TestOpenRejectsSecondPositionOnSymbol(t *testing.T) {
	l := New()

	if ok := l.Open(types.Position{TraderID: "alpha", Symbol: "BTCUSDT", Side: types.SideLong}); !ok {
		t.Fatal("first open should succeed")
	}
	if ok := l.Open(types.Position{TraderID: "alpha", Symbol: "BTCUSDT", Side: types.SideShort}); ok {
		t.Fatal("second open on same symbol should fail")
	}
	if got := l.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestCloseRemovesPosition(t *testing.T) {
	l := New()
	l.Open(types.Position{Symbol: "ETHUSDT", Side: types.SideShort, EntryPrice: 3000})

	p, ok := l.Close("ETHUSDT")
	if !ok || p.EntryPrice != 3000 {
		t.Fatalf("Close() = %+v, %v", p, ok)
	}
	if _, ok := l.Get("ETHUSDT"); ok {
		t.Error("position should be gone after close")
	}
	if _, ok := l.Close("ETHUSDT"); ok {
		t.Error("closing twice should report missing")
	}
}

func TestListOpenReturnsCopies(t *testing.T) {
	l := New()
	l.Open(types.Position{Symbol: "SOLUSDT", Side: types.SideLong, EntryPrice: 150})

	got := l.ListOpen()
	got[0].EntryPrice = 1

	p, _ := l.Get("SOLUSDT")
	if p.EntryPrice != 150 {
		t.Errorf("mutating ListOpen result changed ledger state: entry = %v", p.EntryPrice)
	}
}

func TestUpdateMark(t *testing.T) {
	l := New()
	l.Open(types.Position{Symbol: "BTCUSDT", Side: types.SideLong, EntryPrice: 60000})
	l.UpdateMark("BTCUSDT", 61500)
	l.UpdateMark("ETHUSDT", 1) // no-op on unknown symbol

	p, _ := l.Get("BTCUSDT")
	if p.MarkPrice != 61500 {
		t.Errorf("MarkPrice = %v, want 61500", p.MarkPrice)
	}
}

func TestReplace(t *testing.T) {
	l := New()
	l.Open(types.Position{Symbol: "BTCUSDT", Side: types.SideLong})

	l.Replace([]types.Position{
		{Symbol: "ETHUSDT", Side: types.SideShort},
		{Symbol: "XRPUSDT", Side: types.SideLong},
	})

	if _, ok := l.Get("BTCUSDT"); ok {
		t.Error("Replace should drop prior positions")
	}
	if l.Count() != 2 {
		t.Errorf("Count() = %d, want 2", l.Count())
	}
}
