package grid

// InventoryTracker holds current long/short exposure. It is mutated only
// by confirmed fills, in arrival order, and read by the sizing pipeline
// and the risk zone. The engine owns it; no locking here.
type InventoryTracker struct {
	longExposure  float64
	shortExposure float64

	equity      float64
	leverage    float64
	capacityPct float64
}

func NewInventoryTracker(equity, leverage, capacityPct float64) *InventoryTracker {
	return &InventoryTracker{
		equity:      equity,
		leverage:    leverage,
		capacityPct: capacityPct,
	}
}

// ApplyFill updates exposure for a confirmed fill. A buy adds long
// exposure; a sell reduces it first and any excess becomes short exposure.
func (t *InventoryTracker) ApplyFill(side Side, size float64) {
	if size <= 0 {
		return
	}
	if side == SideBuy {
		if t.shortExposure > 0 {
			covered := minFloat(t.shortExposure, size)
			t.shortExposure -= covered
			size -= covered
		}
		t.longExposure += size
		return
	}
	if t.longExposure >= size {
		t.longExposure -= size
		return
	}
	size -= t.longExposure
	t.longExposure = 0
	t.shortExposure += size
}

func (t *InventoryTracker) LongExposure() float64  { return t.longExposure }
func (t *InventoryTracker) ShortExposure() float64 { return t.shortExposure }

// Notional values the net exposure at the given price.
func (t *InventoryTracker) Notional(price float64) float64 {
	return (t.longExposure + t.shortExposure) * price
}

// Capacity is the maximum notional the account is allowed to carry.
func (t *InventoryTracker) Capacity() float64 {
	return t.equity * t.leverage * t.capacityPct
}

// Ratio is notional over capacity, the input to the inventory-skew factor
// and the risk-zone inventory checks.
func (t *InventoryTracker) Ratio(price float64) float64 {
	cap := t.Capacity()
	if cap <= 0 {
		return 0
	}
	return t.Notional(price) / cap
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
