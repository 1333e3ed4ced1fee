package raw

import (
	"fmt"

	"github.com/vkaloerov/cecat/internal/ecat"
)

// wordReader reads one 16-bit word from a slave's information interface.
// The raw link backs it with EEPROM register transactions.
type wordReader func(word uint16) (uint16, error)

// siiIdentity is the fixed part of the slave information interface.
type siiIdentity struct {
	VendorID     uint32
	ProductCode  uint32
	Revision     uint32
	MailboxSize  uint16
	MailboxProto uint16
}

func readIdentity(read wordReader) (siiIdentity, error) {
	var id siiIdentity

	lo, err := read(siiVendorID)
	if err != nil {
		return id, err
	}
	hi, err := read(siiVendorID + 1)
	if err != nil {
		return id, err
	}
	id.VendorID = uint32(lo) | uint32(hi)<<16

	lo, err = read(siiProductCode)
	if err != nil {
		return id, err
	}
	hi, err = read(siiProductCode + 1)
	if err != nil {
		return id, err
	}
	id.ProductCode = uint32(lo) | uint32(hi)<<16

	lo, err = read(siiRevision)
	if err != nil {
		return id, err
	}
	hi, err = read(siiRevision + 1)
	if err != nil {
		return id, err
	}
	id.Revision = uint32(lo) | uint32(hi)<<16

	if id.MailboxSize, err = read(siiMailboxSize); err != nil {
		return id, err
	}
	if id.MailboxProto, err = read(siiMailboxProtocol); err != nil {
		return id, err
	}
	return id, nil
}

// siiCategory is one entry of the category chain, with its content already
// pulled into a byte slice.
type siiCategory struct {
	Type uint16
	Data []byte
}

// readCategories walks the category chain starting at the first category
// word. The chain is (type, wordLen, data...) repeated until the end marker.
func readCategories(read wordReader) ([]siiCategory, error) {
	var cats []siiCategory

	addr := uint16(siiFirstCategory)
	for {
		catType, err := read(addr)
		if err != nil {
			return nil, err
		}
		if catType == catEnd {
			return cats, nil
		}
		wordLen, err := read(addr + 1)
		if err != nil {
			return nil, err
		}

		data := make([]byte, 0, int(wordLen)*2)
		for w := uint16(0); w < wordLen; w++ {
			v, err := read(addr + 2 + w)
			if err != nil {
				return nil, err
			}
			data = append(data, byte(v), byte(v>>8))
		}

		cats = append(cats, siiCategory{Type: catType & 0x7FFF, Data: data})
		addr += 2 + wordLen

		if len(cats) > 128 {
			return nil, fmt.Errorf("category chain does not terminate")
		}
	}
}

// parseStrings decodes the strings category: a count byte followed by
// length-prefixed strings. String indices elsewhere in the SII are 1-based.
func parseStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	count := int(data[0])
	strs := make([]string, 0, count)
	pos := 1
	for i := 0; i < count; i++ {
		if pos >= len(data) {
			break
		}
		n := int(data[pos])
		pos++
		if pos+n > len(data) {
			break
		}
		strs = append(strs, string(data[pos:pos+n]))
		pos += n
	}
	return strs
}

// parseSyncManagers decodes the sync manager category, 8 bytes per channel.
func parseSyncManagers(data []byte) []ecat.SyncManager {
	var sms []ecat.SyncManager
	for pos := 0; pos+syncManagerEntryLen <= len(data); pos += syncManagerEntryLen {
		sms = append(sms, ecat.SyncManager{
			StartAddr: uint16(data[pos]) | uint16(data[pos+1])<<8,
			Length:    uint16(data[pos+2]) | uint16(data[pos+3])<<8,
			Flags:     uint32(data[pos+4]) | uint32(data[pos+7])<<8,
		})
	}
	return sms
}

// parsePDOBits sums the bit lengths of all entries in a TXPDO or RXPDO
// category. Each PDO is an 8-byte header followed by 8-byte entries; the
// header's third byte carries the entry count and each entry's sixth byte
// the bit length.
func parsePDOBits(data []byte) int {
	bits := 0
	pos := 0
	for pos+8 <= len(data) {
		entries := int(data[pos+2])
		pos += 8
		for e := 0; e < entries && pos+8 <= len(data); e++ {
			bits += int(data[pos+5])
			pos += 8
		}
	}
	return bits
}

// readSlaveInfo assembles a slave's static configuration from its
// information interface. Process data sizes come from the PDO categories,
// rounded up to whole bytes the way the sync managers carry them.
func readSlaveInfo(read wordReader) (ecat.SlaveInfo, error) {
	var info ecat.SlaveInfo

	id, err := readIdentity(read)
	if err != nil {
		return info, fmt.Errorf("read identity: %w", err)
	}
	info.VendorID = id.VendorID
	info.ProductID = id.ProductCode
	info.Revision = id.Revision
	info.MailboxLen = id.MailboxSize
	info.MailboxProto = id.MailboxProto

	cats, err := readCategories(read)
	if err != nil {
		return info, fmt.Errorf("read categories: %w", err)
	}

	var strs []string
	nameIdx := 0
	for _, cat := range cats {
		switch cat.Type {
		case catStrings:
			strs = parseStrings(cat.Data)
		case catGeneral:
			if len(cat.Data) > generalCoEDetails {
				info.CoEDetails = cat.Data[generalCoEDetails]
			}
			if len(cat.Data) > generalNameIdx {
				nameIdx = int(cat.Data[generalNameIdx])
			}
		case catSyncM:
			sms := parseSyncManagers(cat.Data)
			if len(sms) > ecat.MaxSyncManagers {
				sms = sms[:ecat.MaxSyncManagers]
			}
			info.SyncManagers = sms
		case catTxPDO:
			info.InputBytes += (parsePDOBits(cat.Data) + 7) / 8
		case catRxPDO:
			info.OutputBytes += (parsePDOBits(cat.Data) + 7) / 8
		}
	}

	if nameIdx > 0 && nameIdx <= len(strs) {
		info.Name = strs[nameIdx-1]
	}
	if info.Name == "" {
		info.Name = fmt.Sprintf("Slave %08X:%08X", info.VendorID, info.ProductID)
	}
	return info, nil
}
