// Package pricemodel computes the live aggregate price from publisher
// quotes using order statistics: the aggregate is the median quote and the
// confidence interval spans the interquartile distance.
package pricemodel

// quickSelect returns the k-th smallest element of a (0-based), partially
// reordering a in place. Median-of-3 pivoting keeps the comparison count
// low and the partition distributes duplicate pivots evenly, so runs of
// equal quotes do not degrade to quadratic time.
func quickSelect(a []int64, k int) int64 {
	for {
		n := len(a)
		if n == 1 {
			return a[0]
		}

		var pivot int64
		if a[0] < a[n/2] {
			switch {
			case a[n/2] < a[n-1]:
				pivot = a[n/2]
			case a[0] < a[n-1]:
				pivot = a[n-1]
			default:
				pivot = a[0]
			}
		} else {
			switch {
			case a[n/2] > a[n-1]:
				pivot = a[n/2]
			case a[0] > a[n-1]:
				pivot = a[n-1]
			default:
				pivot = a[0]
			}
		}

		i, j := 0, n-1
		for i <= j {
			if a[i] < pivot {
				i++
				continue
			}
			if a[j] > pivot {
				j--
				continue
			}
			a[i], a[j] = a[j], a[i]
			i++
			j--
		}

		switch {
		case k < j+1:
			a = a[:j+1]
		case j+2 == i && k == j+1:
			return pivot
		default:
			a = a[j+1:]
			k -= j + 1
		}
	}
}

// avg2 returns the average of two int64 values rounded toward negative
// infinity, without intermediate overflow.
func avg2(x, y int64) int64 {
	return (x >> 1) + (y >> 1) + (x & y & 1)
}
