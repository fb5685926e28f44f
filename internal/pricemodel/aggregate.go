package pricemodel

import "errors"

// ErrNoQuotes is returned when aggregating an empty quote set.
var ErrNoQuotes = errors.New("no quotes to aggregate")

// Percentiles extracts the 25th, 50th and 75th percentile quotes. The input
// slice is reordered in place.
func Percentiles(quotes []int64) (p25, p50, p75 int64, err error) {
	n := len(quotes)
	if n == 0 {
		return 0, 0, 0, ErrNoQuotes
	}

	if n&1 == 1 {
		p50 = quickSelect(quotes, n>>1)
	} else {
		left := quickSelect(quotes, n>>1-1)
		right := quickSelect(quotes, n>>1)
		p50 = avg2(left, right)
	}

	p25Idx := n >> 2
	p25 = quickSelect(quotes, p25Idx)
	p75 = quickSelect(quotes, n-1-p25Idx)

	return p25, p50, p75, nil
}

// Aggregate reduces publisher quotes to an aggregate price and confidence
// interval: the price is the median and the confidence is the larger
// distance from the median to the outer quartiles.
func Aggregate(quotes []int64) (price int64, conf uint64, err error) {
	p25, p50, p75, err := Percentiles(quotes)
	if err != nil {
		return 0, 0, err
	}

	lower := p50 - p25
	upper := p75 - p50
	if lower > upper {
		return p50, uint64(lower), nil
	}
	return p50, uint64(upper), nil
}
