package raw

// EtherCAT slave controller register map, the subset the master touches.
const (
	regType                     = 0x0000
	regConfiguredStationAddress = 0x0010
	regConfiguredStationAlias   = 0x0012
	regDLControl                = 0x0100
	regALControl                = 0x0120
	regALStatus                 = 0x0130
	regALStatusCode             = 0x0134
	regEEPROMControlStatus      = 0x0502
	regEEPROMAddress            = 0x0504
	regEEPROMData               = 0x0508
	regFMMUBase                 = 0x0600
	regSyncManagerBase          = 0x0800

	fmmuEntryLen        = 16
	syncManagerEntryLen = 8

	// ALControl/ALStatus state bits; the error-indication and
	// error-acknowledge bit sits above them.
	alStateMask = 0x000F
	alErrorBit  = 0x0010
)

// SII word addresses. The slave information interface is word-addressed
// EEPROM content; the identity block sits at fixed offsets and everything
// else hangs off the category chain.
const (
	siiVendorID        = 0x0008
	siiProductCode     = 0x000A
	siiRevision        = 0x000C
	siiMailboxOffset   = 0x0018
	siiMailboxSize     = 0x0019
	siiMailboxProtocol = 0x001C
	siiFirstCategory   = 0x0040
)

// SII category types.
const (
	catStrings = 10
	catGeneral = 30
	catFMMU    = 40
	catSyncM   = 41
	catTxPDO   = 50
	catRxPDO   = 51
	catEnd     = 0xFFFF
)

// Offsets within the general category, in bytes from its start.
const (
	generalNameIdx    = 0x03 // string index of the device name
	generalCoEDetails = 0x07
)
