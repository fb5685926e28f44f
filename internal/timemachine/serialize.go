package timemachine

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire layout of the time machine region, little endian:
//
//	granularity(8) threshold(8) open_index(4) pad(4) ring[RingCapacity]
//
// with each bucket encoded as
//
//	start_time(8) last_update(8) price_weight_sum(8) conf_sum(8)
//	weight_sum(8) count(4) closed(4)
const (
	headerSize = 24
	bucketSize = 48

	// Size is the byte length of the serialized state. It is part of the
	// account format: extended size = legacy size + Size.
	Size = headerSize + RingCapacity*bucketSize
)

// ErrRegionTooShort is returned when the byte region cannot hold the state.
var ErrRegionTooShort = errors.New("time machine region too short")

// Marshal encodes the state into region, which must hold at least Size
// bytes.
func (s *State) Marshal(region []byte) error {
	if len(region) < Size {
		return fmt.Errorf("need %d bytes, have %d: %w", Size, len(region), ErrRegionTooShort)
	}

	binary.LittleEndian.PutUint64(region[0:], uint64(s.Granularity))
	binary.LittleEndian.PutUint64(region[8:], uint64(s.Threshold))
	binary.LittleEndian.PutUint32(region[16:], uint32(s.OpenIndex))

	for i := range s.Ring {
		b := &s.Ring[i]
		out := region[headerSize+i*bucketSize:]
		binary.LittleEndian.PutUint64(out[0:], uint64(b.StartTime))
		binary.LittleEndian.PutUint64(out[8:], uint64(b.LastUpdate))
		binary.LittleEndian.PutUint64(out[16:], uint64(b.PriceWeightSum))
		binary.LittleEndian.PutUint64(out[24:], b.ConfSum)
		binary.LittleEndian.PutUint64(out[32:], uint64(b.WeightSum))
		binary.LittleEndian.PutUint32(out[40:], b.Count)
		var closed uint32
		if b.Closed {
			closed = 1
		}
		binary.LittleEndian.PutUint32(out[44:], closed)
	}

	return nil
}

// Unmarshal decodes the state from region.
func Unmarshal(region []byte) (*State, error) {
	if len(region) < Size {
		return nil, fmt.Errorf("need %d bytes, have %d: %w", Size, len(region), ErrRegionTooShort)
	}

	s := &State{
		Granularity: int64(binary.LittleEndian.Uint64(region[0:])),
		Threshold:   int64(binary.LittleEndian.Uint64(region[8:])),
		OpenIndex:   int32(binary.LittleEndian.Uint32(region[16:])),
	}

	for i := range s.Ring {
		in := region[headerSize+i*bucketSize:]
		s.Ring[i] = Bucket{
			StartTime:      int64(binary.LittleEndian.Uint64(in[0:])),
			LastUpdate:     int64(binary.LittleEndian.Uint64(in[8:])),
			PriceWeightSum: int64(binary.LittleEndian.Uint64(in[16:])),
			ConfSum:        binary.LittleEndian.Uint64(in[24:]),
			WeightSum:      int64(binary.LittleEndian.Uint64(in[32:])),
			Count:          binary.LittleEndian.Uint32(in[40:]),
			Closed:         binary.LittleEndian.Uint32(in[44:]) != 0,
		}
	}

	return s, nil
}

// InstallDefault writes the default state into a freshly grown, zeroed
// region. The account resize instruction calls this exactly once per
// account.
func InstallDefault(region []byte) error {
	return NewState().Marshal(region)
}
