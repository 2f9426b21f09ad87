package mmio

// System Control Block and debug registers of ARMv7-M / ARMv8-M cores.
const (
	CPUID = 0xE000ED00
	ICSR  = 0xE000ED04
	VTOR  = 0xE000ED08
	AIRCR = 0xE000ED0C
	SCR   = 0xE000ED10
	CCR   = 0xE000ED14
	SHCSR = 0xE000ED24
	CFSR  = 0xE000ED28
	HFSR  = 0xE000ED2C
	DFSR  = 0xE000ED30
	MMFAR = 0xE000ED34
	BFAR  = 0xE000ED38
	AFSR  = 0xE000ED3C
	DHCSR = 0xE000EDF0
	DEMCR = 0xE000EDFC

	// DBGMCUIDCode is the STM32 MCU device ID register.
	DBGMCUIDCode = 0xE0042000
)

// SCB is the address range covered by the System Control Block.
var SCB = Region{Name: "SCB", Origin: 0xE000ED00, Length: 0x100}

// CCR bits.
const (
	CCRUnalignTrap = 1 << 3
	CCRDiv0Trap    = 1 << 4
)

// SHCSR fault handler enables.
const (
	SHCSRMemFaultEna   = 1 << 16
	SHCSRBusFaultEna   = 1 << 17
	SHCSRUsageFaultEna = 1 << 18
)

// AIRCR writes must carry VECTKEY in the upper half-word.
const (
	AIRCRVectKey     = 0x05FA << 16
	AIRCRSysResetReq = 1 << 2
	AIRCRVectKeyStat = 0xFA05 << 16
	AIRCRVectKeyMask = 0xFFFF << 16
)

// DHCSR bits.
const (
	DHCSRDebugEn = 1 << 0
	DHCSRHalt    = 1 << 1
	DHCSRSHalt   = 1 << 17
)
