package fault

// CFSR bits. MMFSR occupies bits 0-7, BFSR 8-15 and UFSR 16-31.
const (
	IACCVIOL  = 1 << 0
	DACCVIOL  = 1 << 1
	MUNSTKERR = 1 << 3
	MSTKERR   = 1 << 4
	MLSPERR   = 1 << 5
	MMARVALID = 1 << 7

	IBUSERR     = 1 << 8
	PRECISERR   = 1 << 9
	IMPRECISERR = 1 << 10
	UNSTKERR    = 1 << 11
	STKERR      = 1 << 12
	LSPERR      = 1 << 13
	BFARVALID   = 1 << 15

	UNDEFINSTR = 1 << 16
	INVSTATE   = 1 << 17
	INVPC      = 1 << 18
	NOCP       = 1 << 19
	STKOF      = 1 << 20
	UNALIGNED  = 1 << 24
	DIVBYZERO  = 1 << 25
)

// HFSR bits.
const (
	VECTTBL  = 1 << 1
	FORCED   = 1 << 30
	DEBUGEVT = 1 << 31
)

const (
	protectionMask = IACCVIOL | DACCVIOL | MUNSTKERR | MSTKERR | MLSPERR
	accessMask     = IBUSERR | PRECISERR | IMPRECISERR | UNSTKERR | STKERR | LSPERR
	usageMask      = UNDEFINSTR | INVSTATE | INVPC | NOCP | STKOF | DIVBYZERO
)

type bitName struct {
	mask uint32
	name string
}

// Order follows the register layout so reports read like the reference
// manual tables.
var cfsrBits = []bitName{
	{IACCVIOL, "IACCVIOL"},
	{DACCVIOL, "DACCVIOL"},
	{MUNSTKERR, "MUNSTKERR"},
	{MSTKERR, "MSTKERR"},
	{MLSPERR, "MLSPERR"},
	{MMARVALID, "MMARVALID"},
	{IBUSERR, "IBUSERR"},
	{PRECISERR, "PRECISERR"},
	{IMPRECISERR, "IMPRECISERR"},
	{UNSTKERR, "UNSTKERR"},
	{STKERR, "STKERR"},
	{LSPERR, "LSPERR"},
	{BFARVALID, "BFARVALID"},
	{UNDEFINSTR, "UNDEFINSTR"},
	{INVSTATE, "INVSTATE"},
	{INVPC, "INVPC"},
	{NOCP, "NOCP"},
	{STKOF, "STKOF"},
	{UNALIGNED, "UNALIGNED"},
	{DIVBYZERO, "DIVBYZERO"},
}

var hfsrBits = []bitName{
	{VECTTBL, "VECTTBL"},
	{FORCED, "FORCED"},
	{DEBUGEVT, "DEBUGEVT"},
}
