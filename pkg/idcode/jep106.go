package idcode

import "fmt"

// designers are the JEP106 codes seen in the DP IDCODE and ROM table of
// Cortex-M parts. Arm's own DPs report 0x23B (bank 5, 0x3B).
var designers = []Manufacturer{
	{0x00E, "Freescale (Motorola)", "Freescale"},
	{0x015, "Philips Semi. (Signetics)", "Philips"},
	{0x017, "Texas Instruments", "TI"},
	{0x01F, "Atmel", "Atmel"},
	{0x020, "STMicroelectronics", "STM"},
	{0x025, "Analog Devices", "ADI"},
	{0x02E, "Cypress", "Cypress"},
	{0x049, "Infineon", "Infineon"},
	{0x06E, "Microchip", "Microchip"},
	{0x093, "ARM", "ARM"},
	{0x0B7, "Espressif", "Espressif"},
	{0x13B, "Nordic Semiconductor", "Nordic"},
	{0x1F1, "Raspberry Pi", "RPi"},
	{0x23B, "ARM Ltd.", "ARM"},
}

var byCode = func() map[uint16]Manufacturer {
	m := make(map[uint16]Manufacturer, len(designers))
	for _, d := range designers {
		m[d.Code] = d
	}
	return m
}()

// LookupManufacturer resolves a JEP106 designer code. Unknown codes come
// back with a placeholder name and ok false.
func LookupManufacturer(code uint16) (m Manufacturer, ok bool) {
	if m, ok = byCode[code]; ok {
		return m, true
	}
	return Manufacturer{Code: code, Name: fmt.Sprintf("Unknown (0x%03X)", code), Abbreviation: "Unknown"}, false
}

func (m Manufacturer) String() string {
	if m.Abbreviation == "" || m.Abbreviation == m.Name {
		return m.Name
	}
	return fmt.Sprintf("%s (%s)", m.Name, m.Abbreviation)
}
