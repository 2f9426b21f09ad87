package deviceinfo

const stm = 0x020 // STMicroelectronics JEP106 code

// STMicroelectronics device entries
func init() {
	// STM32F1 series
	register(key{ManufacturerCode: stm, DevID: 0x410}, DeviceInfo{
		Name:        "STM32F10x (Medium-density)",
		Family:      "STM32F1",
		Description: "Arm Cortex-M3 MCU",
		ARMCore:     "Cortex-M3",
	})
	register(key{ManufacturerCode: stm, DevID: 0x414}, DeviceInfo{
		Name:        "STM32F10x (High-density)",
		Family:      "STM32F1",
		Description: "Arm Cortex-M3 MCU",
		ARMCore:     "Cortex-M3",
	})

	// STM32F3/F4 series
	register(key{ManufacturerCode: stm, DevID: 0x422}, DeviceInfo{
		Name:              "STM32F30x/31x",
		Family:            "STM32F3",
		Description:       "Arm Cortex-M4 MCU with FPU",
		ARMCore:           "Cortex-M4",
		RetainedRAMOrigin: 0x10000000,
		RetainedRAMSize:   8 << 10,
	})
	register(key{ManufacturerCode: stm, DevID: 0x413}, DeviceInfo{
		Name:              "STM32F40x/41x",
		Family:            "STM32F4",
		Description:       "Arm Cortex-M4 MCU with FPU",
		ARMCore:           "Cortex-M4",
		RetainedRAMOrigin: 0x10000000,
		RetainedRAMSize:   64 << 10,
	})
	register(key{ManufacturerCode: stm, DevID: 0x419}, DeviceInfo{
		Name:              "STM32F42x/43x",
		Family:            "STM32F4",
		Description:       "Arm Cortex-M4 MCU with FPU",
		ARMCore:           "Cortex-M4",
		RetainedRAMOrigin: 0x10000000,
		RetainedRAMSize:   64 << 10,
	})

	// STM32L4 series; SRAM2 is mapped at 0x10000000 and survives reset.
	register(key{ManufacturerCode: stm, DevID: 0x415}, DeviceInfo{
		Name:              "STM32L47x/L48x",
		Family:            "STM32L4",
		Description:       "Arm Cortex-M4 ultra-low-power MCU with FPU",
		ARMCore:           "Cortex-M4",
		RetainedRAMOrigin: 0x10000000,
		RetainedRAMSize:   32 << 10,
	})
	register(key{ManufacturerCode: stm, DevID: 0x435}, DeviceInfo{
		Name:              "STM32L43x/L44x",
		Family:            "STM32L4",
		Description:       "Arm Cortex-M4 ultra-low-power MCU with FPU",
		ARMCore:           "Cortex-M4",
		RetainedRAMOrigin: 0x10000000,
		RetainedRAMSize:   16 << 10,
	})
	register(key{ManufacturerCode: stm, DevID: 0x461}, DeviceInfo{
		Name:              "STM32L49x/L4Ax",
		Family:            "STM32L4",
		Description:       "Arm Cortex-M4 ultra-low-power MCU with FPU",
		ARMCore:           "Cortex-M4",
		RetainedRAMOrigin: 0x10000000,
		RetainedRAMSize:   64 << 10,
	})
	register(key{ManufacturerCode: stm, DevID: 0x462}, DeviceInfo{
		Name:              "STM32L45x/L46x",
		Family:            "STM32L4",
		Description:       "Arm Cortex-M4 ultra-low-power MCU with FPU",
		ARMCore:           "Cortex-M4",
		RetainedRAMOrigin: 0x10000000,
		RetainedRAMSize:   32 << 10,
	})

	// STM32F7/H7 series
	register(key{ManufacturerCode: stm, DevID: 0x449}, DeviceInfo{
		Name:        "STM32F74x/75x",
		Family:      "STM32F7",
		Description: "Arm Cortex-M7 MCU with FPU",
		ARMCore:     "Cortex-M7",
	})
	register(key{ManufacturerCode: stm, DevID: 0x450}, DeviceInfo{
		Name:        "STM32H74x/75x",
		Family:      "STM32H7",
		Description: "Arm Cortex-M7 MCU with FPU",
		ARMCore:     "Cortex-M7",
	})
}
