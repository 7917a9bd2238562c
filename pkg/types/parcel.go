package types

// Dimensions are per-unit physical attributes snapshotted on physical line
// items, in the units carriers expect (grams / centimetres).
type Dimensions struct {
	WeightGrams int `json:"weight_grams"`
	LengthCM    int `json:"length_cm"`
	WidthCM     int `json:"width_cm"`
	HeightCM    int `json:"height_cm"`
}

// Parcel is the aggregate package handed to the carrier for one order.
type Parcel struct {
	WeightGrams int `json:"weight_grams"`
	LengthCM    int `json:"length_cm"`
	WidthCM     int `json:"width_cm"`
	HeightCM    int `json:"height_cm"`
}

// Add folds qty units of the given dimensions into the parcel. Weight is
// additive; the box dimensions take the max footprint and stack height.
func (p *Parcel) Add(d Dimensions, qty int) {
	if qty <= 0 {
		return
	}
	p.WeightGrams += d.WeightGrams * qty
	if d.LengthCM > p.LengthCM {
		p.LengthCM = d.LengthCM
	}
	if d.WidthCM > p.WidthCM {
		p.WidthCM = d.WidthCM
	}
	p.HeightCM += d.HeightCM * qty
}

// Empty reports whether nothing physical was added.
func (p Parcel) Empty() bool {
	return p.WeightGrams == 0
}
