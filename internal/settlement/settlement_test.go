package settlement

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hypenergy/energymarket/internal/model"
)

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

func clearedAuction(mcp int64) model.Auction {
	return model.Auction{ID: "auc-1", Status: model.AuctionCleared, MCP: mcp}
}

func participant(id string, coins int64) model.MarketParticipant {
	return model.MarketParticipant{
		ID:            id,
		CoinBalance:   d(coins),
		FrozenCoins:   decimal.Zero,
		EnergyBalance: decimal.Zero,
	}
}

func reading(period string, consumed, produced int64) model.SmartMeterReading {
	return model.SmartMeterReading{AuctionPeriod: period, Consumed: consumed, Produced: produced}
}

func successfulOrder(id, sender string, side model.OrderSide, amount int64) model.FullOrder {
	return model.FullOrder{ID: id, AuctionID: "auc-1", Sender: sender, Side: side, Amount: amount, Successful: true}
}

func market(buy, sell int64) model.Market {
	return model.Market{ID: model.MarketID, CoinBalance: decimal.Zero, EnergyBalance: decimal.Zero, GridBuyPrice: buy, GridSellPrice: sell}
}

func grid() model.Grid {
	return model.Grid{ID: model.GridID, CoinBalance: decimal.Zero, EnergyBalance: decimal.Zero}
}

func TestSettle_NotCleared(t *testing.T) {
	in := Input{Auction: model.Auction{ID: "auc-1", Status: model.AuctionOpen}}
	_, err := Settle(in)
	if !errors.Is(err, ErrNotCleared) {
		t.Errorf("expected ErrNotCleared, got %v", err)
	}
}

func TestSettle_ConsumptionShortfall(t *testing.T) {
	// Bid for 10, metered 14: the 10 predicted units settle at the MCP of
	// 8, the 4-unit shortfall is bought through the market at the grid buy
	// price of 28.
	p := participant("p1", 1000)
	p.Readings = []model.SmartMeterReading{reading("auc-1", 14, 0)}

	out, err := Settle(Input{
		Auction:      clearedAuction(8),
		Participants: []model.MarketParticipant{p},
		Market:       market(28, 12),
		Grid:         grid(),
		Bids:         []model.FullOrder{successfulOrder("b1", "p1", model.SideBid, 10)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.Participants[0]
	wantCoins := d(1000 - 10*8 - 4*28) // -192 delta
	if !got.CoinBalance.Equal(wantCoins) {
		t.Errorf("expected coin balance %s, got %s", wantCoins, got.CoinBalance)
	}
	if !got.EnergyBalance.Equal(d(14)) {
		t.Errorf("expected energy balance 14, got %s", got.EnergyBalance)
	}

	// The market absorbed 192 coins and owes 14 units of energy, which the
	// grid step buys back at 28 per unit.
	if !out.Market.EnergyBalance.IsZero() {
		t.Errorf("market energy must be netted to zero, got %s", out.Market.EnergyBalance)
	}
	if !out.Grid.EnergyBalance.Equal(d(-14)) {
		t.Errorf("expected grid energy -14, got %s", out.Grid.EnergyBalance)
	}
	if !out.Grid.CoinBalance.Equal(d(14 * 28)) {
		t.Errorf("expected grid coins %d, got %s", 14*28, out.Grid.CoinBalance)
	}
}

func TestSettle_ProductionSurplus(t *testing.T) {
	// Ask for 5, metered 8 produced: 5 settle at the MCP of 4, the 3-unit
	// surplus is sold at the grid sell price of 6.
	p := participant("p1", 100)
	p.Readings = []model.SmartMeterReading{reading("auc-1", 0, 8)}

	out, err := Settle(Input{
		Auction:      clearedAuction(4),
		Participants: []model.MarketParticipant{p},
		Market:       market(10, 6),
		Grid:         grid(),
		Asks:         []model.FullOrder{successfulOrder("a1", "p1", model.SideAsk, 5)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.Participants[0]
	wantCoins := d(100 + 5*4 + 3*6)
	if !got.CoinBalance.Equal(wantCoins) {
		t.Errorf("expected coin balance %s, got %s", wantCoins, got.CoinBalance)
	}
	if !got.EnergyBalance.Equal(d(-8)) {
		t.Errorf("expected energy balance -8, got %s", got.EnergyBalance)
	}
	// The market holds 8 surplus units, sold to the grid at 6.
	if !out.Market.EnergyBalance.IsZero() {
		t.Errorf("market energy must be netted to zero, got %s", out.Market.EnergyBalance)
	}
	if !out.Grid.EnergyBalance.Equal(d(8)) {
		t.Errorf("expected grid energy 8, got %s", out.Grid.EnergyBalance)
	}
}

func TestSettle_UnderDelivery(t *testing.T) {
	// Ask for 6, metered only 2 produced: the missing 4 units are bought
	// back at the grid buy price to make the promised ask whole.
	p := participant("p1", 500)
	p.Readings = []model.SmartMeterReading{reading("auc-1", 0, 2)}

	out, err := Settle(Input{
		Auction:      clearedAuction(5),
		Participants: []model.MarketParticipant{p},
		Market:       market(20, 8),
		Grid:         grid(),
		Asks:         []model.FullOrder{successfulOrder("a1", "p1", model.SideAsk, 6)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.Participants[0]
	wantCoins := d(500 + 6*5 - 4*20)
	if !got.CoinBalance.Equal(wantCoins) {
		t.Errorf("expected coin balance %s, got %s", wantCoins, got.CoinBalance)
	}
	if !got.EnergyBalance.Equal(d(-2)) {
		t.Errorf("expected energy balance -2, got %s", got.EnergyBalance)
	}
}

func TestSettle_MissingReadingAsZero(t *testing.T) {
	// No reading for the period: the participant settles as if it metered
	// zero, so the 4 units bought at the MCP of 7 are sold straight back at
	// the grid sell price of 3.
	p := participant("p1", 100)

	out, err := Settle(Input{
		Auction:      clearedAuction(7),
		Participants: []model.MarketParticipant{p},
		Market:       market(25, 3),
		Grid:         grid(),
		Bids:         []model.FullOrder{successfulOrder("b1", "p1", model.SideBid, 4)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.Participants[0]
	wantCoins := d(100 - 4*7 + 4*3)
	if !got.CoinBalance.Equal(wantCoins) {
		t.Errorf("expected coin balance %s, got %s", wantCoins, got.CoinBalance)
	}
	if !got.EnergyBalance.IsZero() {
		t.Errorf("expected zero energy delta, got %s", got.EnergyBalance)
	}
}

func TestSettle_NoMatchSettlesViaGrid(t *testing.T) {
	// The auction cleared without an intersection: no successful orders, so
	// actual consumption settles entirely at grid prices.
	p := participant("p1", 200)
	p.Readings = []model.SmartMeterReading{reading("auc-1", 5, 0)}

	out, err := Settle(Input{
		Auction:      clearedAuction(model.NoMatchPrice),
		Participants: []model.MarketParticipant{p},
		Market:       market(30, 10),
		Grid:         grid(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.Participants[0]
	wantCoins := d(200 - 5*30)
	if !got.CoinBalance.Equal(wantCoins) {
		t.Errorf("expected coin balance %s, got %s", wantCoins, got.CoinBalance)
	}
	if !got.EnergyBalance.Equal(d(5)) {
		t.Errorf("expected energy balance 5, got %s", got.EnergyBalance)
	}
}

func TestSettle_SplitOrderTradesMatchedAmountOnly(t *testing.T) {
	// A split bid (10 placed, 6 unmatched) trades only its 4 matched units.
	p := participant("p1", 100)
	p.Readings = []model.SmartMeterReading{reading("auc-1", 4, 0)}

	split := successfulOrder("b1", "p1", model.SideBid, 10)
	split.UnmatchedAmount = 6

	out, err := Settle(Input{
		Auction:      clearedAuction(5),
		Participants: []model.MarketParticipant{p},
		Market:       market(20, 8),
		Grid:         grid(),
		Bids:         []model.FullOrder{split},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.Participants[0]
	wantCoins := d(100 - 4*5)
	if !got.CoinBalance.Equal(wantCoins) {
		t.Errorf("expected coin balance %s, got %s", wantCoins, got.CoinBalance)
	}
	if !got.EnergyBalance.Equal(d(4)) {
		t.Errorf("expected energy balance 4, got %s", got.EnergyBalance)
	}
}

func TestSettle_Conservation(t *testing.T) {
	// Coins and energy must be conserved across all accounts, with the
	// market's energy balance back at zero after the grid step.
	p1 := participant("p1", 300)
	p1.Readings = []model.SmartMeterReading{reading("auc-1", 9, 0)}
	p2 := participant("p2", 300)
	p2.Readings = []model.SmartMeterReading{reading("auc-1", 0, 6)}

	in := Input{
		Auction:      clearedAuction(6),
		Participants: []model.MarketParticipant{p1, p2},
		Market:       market(22, 9),
		Grid:         grid(),
		Bids:         []model.FullOrder{successfulOrder("b1", "p1", model.SideBid, 7)},
		Asks:         []model.FullOrder{successfulOrder("a1", "p2", model.SideAsk, 7)},
	}
	out, err := Settle(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coinSum := out.Market.CoinBalance.Add(out.Grid.CoinBalance)
	energySum := out.Market.EnergyBalance.Add(out.Grid.EnergyBalance)
	for i, p := range out.Participants {
		coinSum = coinSum.Add(p.CoinBalance).Sub(in.Participants[i].CoinBalance)
		energySum = energySum.Add(p.EnergyBalance)
	}
	if !coinSum.IsZero() {
		t.Errorf("coins not conserved, net delta %s", coinSum)
	}
	if !energySum.IsZero() {
		t.Errorf("energy not conserved, net delta %s", energySum)
	}
	if !out.Market.EnergyBalance.IsZero() {
		t.Errorf("market energy not netted to zero: %s", out.Market.EnergyBalance)
	}
}

func TestSettle_PureFunction(t *testing.T) {
	p := participant("p1", 100)
	p.Readings = []model.SmartMeterReading{reading("auc-1", 3, 0)}
	in := Input{
		Auction:      clearedAuction(4),
		Participants: []model.MarketParticipant{p},
		Market:       market(15, 5),
		Grid:         grid(),
		Bids:         []model.FullOrder{successfulOrder("b1", "p1", model.SideBid, 3)},
	}

	first, err := Settle(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Settle(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !first.Participants[0].CoinBalance.Equal(second.Participants[0].CoinBalance) ||
		!first.Market.CoinBalance.Equal(second.Market.CoinBalance) ||
		!first.Grid.CoinBalance.Equal(second.Grid.CoinBalance) {
		t.Error("re-running settlement on the same input changed the outcome")
	}
	// The caller's input must be untouched.
	if !in.Participants[0].CoinBalance.Equal(d(100)) {
		t.Errorf("input participant mutated: %s", in.Participants[0].CoinBalance)
	}
	if !in.Market.CoinBalance.IsZero() {
		t.Errorf("input market mutated: %s", in.Market.CoinBalance)
	}
}

func TestSettle_ParticipantsSortedByID(t *testing.T) {
	out, err := Settle(Input{
		Auction: clearedAuction(3),
		Participants: []model.MarketParticipant{
			participant("p3", 0), participant("p1", 0), participant("p2", 0),
		},
		Market: market(10, 5),
		Grid:   grid(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if out.Participants[i].ID != want {
			t.Fatalf("participants not in ascending id order: %v", out.Participants)
		}
	}
}
