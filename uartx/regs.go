// uartx/regs.go

package uartx

// Bus is byte-wide access to a 16550 register block. A hardware build maps it
// onto MMIO; host builds use SimBus.
type Bus interface {
	Read8(off uint8) uint8
	Write8(off uint8, v uint8)
}

// Register offsets. DLL and DLM alias RHR/THR and IER while LCR.DLAB is set.
const (
	RegTHR uint8 = 0x0
	RegRHR uint8 = 0x0
	RegIER uint8 = 0x1
	RegFCR uint8 = 0x2
	RegISR uint8 = 0x2
	RegLCR uint8 = 0x3
	RegMCR uint8 = 0x4
	RegLSR uint8 = 0x5
	RegMSR uint8 = 0x6
	RegSPR uint8 = 0x7
	RegDLL uint8 = 0x0
	RegDLM uint8 = 0x1
)

// IER bits.
const (
	IERRxDataReady uint8 = 0x01
	IERTHREmpty    uint8 = 0x02
	IERRxLineStat  uint8 = 0x04
)

// ISR interrupt identification codes (low nibble).
const (
	ISRIntMask        uint8 = 0x0f
	ISRIntNone        uint8 = 0x01
	ISRIntRxLineStat  uint8 = 0x06
	ISRIntRxDataReady uint8 = 0x04
	ISRIntRxTimeout   uint8 = 0x0c
	ISRIntTHREmpty    uint8 = 0x02
)

// FCR bits. The trigger field selects the RX FIFO level that raises
// RX data ready.
const (
	FCRFIFOEnable uint8 = 0x01
	FCRRxReset    uint8 = 0x02
	FCRTxReset    uint8 = 0x04
	FCRTrig1      uint8 = 0x00
	FCRTrig4      uint8 = 0x40
	FCRTrig8      uint8 = 0x80
	FCRTrig14     uint8 = 0xc0
	fcrTrigMask   uint8 = 0xc0
)

// LCR bits.
const (
	LCRLenMask     uint8 = 0x03
	LCRLen5        uint8 = 0x00
	LCRLen6        uint8 = 0x01
	LCRLen7        uint8 = 0x02
	LCRLen8        uint8 = 0x03
	LCRDoubleStop  uint8 = 0x04
	LCRParityEn    uint8 = 0x08
	LCREvenParity  uint8 = 0x10
	LCRForceParity uint8 = 0x20
	LCRSetBreak    uint8 = 0x40
	LCRDLAB        uint8 = 0x80

	LCRParityMask   uint8 = 0x38
	LCRParityNone   uint8 = 0x00
	LCRParityOdd    uint8 = 0x08
	LCRParityEven   uint8 = 0x18
	LCRParityForce1 uint8 = 0x28
	LCRParityForce0 uint8 = 0x38

	LCRDefault = LCRLen8 | LCRParityNone
)

// MCR bits.
const MCRLoopback uint8 = 0x10

// LSR bits.
const (
	LSRDataReady  uint8 = 0x01
	LSROverrunErr uint8 = 0x02
	LSRParityErr  uint8 = 0x04
	LSRFrameErr   uint8 = 0x08
	LSRBreakInt   uint8 = 0x10
	LSRTHREmpty   uint8 = 0x20
	LSRTxEmpty    uint8 = 0x40
	LSRFIFOErr    uint8 = 0x80
)

// FIFODepth is the size of the hardware RX and TX FIFOs.
const FIFODepth = 16

// triggerLevel maps the FCR trigger field to a byte count.
func triggerLevel(fcr uint8) int {
	switch fcr & fcrTrigMask {
	case FCRTrig4:
		return 4
	case FCRTrig8:
		return 8
	case FCRTrig14:
		return 14
	default:
		return 1
	}
}
