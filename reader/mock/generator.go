package mock

import (
	"math"
	"math/rand"
	"time"

	"pressureflow/models"
)

const (
	priceJitter = 500.0
	minStep     = 10.0
	stepJitter  = 20.0
	maxQty      = 5.0
	minQty      = 0.1
	maxOrders   = 10
)

// Generator produces synthetic books around a base price. It is not safe for
// concurrent use.
type Generator struct {
	symbol    string
	basePrice float64
	levels    int
	rng       *rand.Rand
}

func NewGenerator(symbol string, basePrice float64, levels int, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if levels <= 0 {
		levels = 20
	}
	return &Generator{
		symbol:    symbol,
		basePrice: basePrice,
		levels:    levels,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Next returns a book whose mid lies within basePrice ± 500. Each side walks
// away from the mid in steps of 10 to 30.
func (g *Generator) Next(ts time.Time) models.MockBookPayload {
	mid := g.basePrice + (g.rng.Float64()*2-1)*priceJitter
	p := models.MockBookPayload{
		Symbol: g.symbol,
		Ts:     ts.UnixMilli(),
		Bids:   make([][3]float64, 0, g.levels),
		Asks:   make([][3]float64, 0, g.levels),
	}

	bid, ask := mid, mid
	for i := 0; i < g.levels; i++ {
		bid -= g.step()
		ask += g.step()
		p.Bids = append(p.Bids, g.level(bid))
		p.Asks = append(p.Asks, g.level(ask))
	}
	return p
}

func (g *Generator) step() float64 {
	return minStep + g.rng.Float64()*stepJitter
}

func (g *Generator) level(price float64) [3]float64 {
	qty := g.rng.Float64()*maxQty + minQty
	orders := float64(g.rng.Intn(maxOrders) + 1)
	return [3]float64{math.Round(price*100) / 100, qty, orders}
}
