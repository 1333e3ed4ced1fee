package ecat

// Inventory is the typed model of the discovered slave population. It owns
// the slave list and the I/O map; slave views point into the map and stay
// valid until the next scan replaces the inventory.

import "fmt"

// Inventory holds the result of one successful bus scan.
type Inventory struct {
	// slaves[0] is the broadcast pseudo-slave; real devices start at 1.
	slaves []Slave
	ioMap  *IOMap
	group  Group
}

// newInventory builds the inventory from discovery results: it commits the
// I/O map partition in bus-index order and wires every slave's views.
func newInventory(infos []SlaveInfo) (*Inventory, error) {
	inv := &Inventory{ioMap: NewIOMap()}

	totalIn, totalOut := 0, 0
	for _, info := range infos {
		totalIn += info.InputBytes
		totalOut += info.OutputBytes
	}
	if err := inv.ioMap.Commit(totalIn, totalOut); err != nil {
		return nil, fmt.Errorf("commit I/O map: %w", err)
	}

	inv.slaves = make([]Slave, len(infos)+1)
	inv.slaves[0] = Slave{Index: 0} // broadcast pseudo-slave, state only

	inOff, outOff := 0, 0
	for i, info := range infos {
		sl := Slave{SlaveInfo: info, Index: i + 1}
		sl.inputOffset = inOff
		sl.outputOffset = outOff
		sl.inputs = inv.ioMap.inputView(inOff, info.InputBytes)
		sl.outputs = inv.ioMap.outputView(outOff, info.OutputBytes)
		inOff += info.InputBytes
		outOff += info.OutputBytes

		if info.InputBytes > 0 {
			inv.group.InputsWKC++
		}
		if info.OutputBytes > 0 {
			inv.group.OutputsWKC++
		}
		inv.slaves[i+1] = sl
	}
	inv.group.InputBytes = totalIn
	inv.group.OutputBytes = totalOut

	return inv, nil
}

// SlaveCount returns the number of real slaves (the pseudo-slave excluded).
func (inv *Inventory) SlaveCount() int {
	return len(inv.slaves) - 1
}

// Slave returns the device at the given 1-based bus index, or the broadcast
// pseudo-slave for index 0.
func (inv *Inventory) Slave(index int) (*Slave, error) {
	if index < 0 || index > inv.SlaveCount() {
		return nil, fmt.Errorf("slave index %d not in [1, %d]: %w",
			index, inv.SlaveCount(), ErrInvalidSlaveIndex)
	}
	return &inv.slaves[index], nil
}

// Slaves returns a read-only snapshot of the real slaves in bus order. The
// copies share the I/O map views with the inventory.
func (inv *Inventory) Slaves() []Slave {
	out := make([]Slave, inv.SlaveCount())
	copy(out, inv.slaves[1:])
	return out
}

// Group returns the process data group summary.
func (inv *Inventory) Group() Group { return inv.group }

// recordMapping copies the mapping units the link layer programmed back
// into the slave entries, so ReadConfig reflects the committed layout.
func (inv *Inventory) recordMapping(layout GroupLayout) {
	for i, seg := range layout.Segments {
		if i+1 >= len(inv.slaves) {
			break
		}
		inv.slaves[i+1].FMMUs = seg.FMMUs
	}
}

// layout derives the link-layer mapping description from the partition.
func (inv *Inventory) layout() GroupLayout {
	l := GroupLayout{
		InputBytes:  inv.group.InputBytes,
		OutputBytes: inv.group.OutputBytes,
	}
	for _, sl := range inv.slaves[1:] {
		l.Segments = append(l.Segments, SlaveSegment{
			StationAddr:  sl.StationAddr,
			InputOffset:  sl.inputOffset,
			InputBytes:   sl.InputBytes,
			OutputOffset: sl.outputOffset,
			OutputBytes:  sl.OutputBytes,
		})
	}
	return l
}
