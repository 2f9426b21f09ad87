package deviceinfo

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/idcode"
)

// key is used for device database lookups
type key struct {
	ManufacturerCode uint16
	DevID            uint16
}

// db is the in-memory device database
var db = make(map[key]DeviceInfo)

// register adds a device entry to the database
func register(k key, info DeviceInfo) {
	info.DevID = k.DevID
	info.Manufacturer, _ = idcode.LookupManufacturer(k.ManufacturerCode)
	info.Known = true
	db[k] = info
}

// LookupSTM32 returns device information for an STM32 DEV_ID.
// Falls back to generic info if the device is not in the database.
func LookupSTM32(devID uint16) DeviceInfo {
	if info, ok := db[key{ManufacturerCode: stm, DevID: devID}]; ok {
		return info
	}
	m, _ := idcode.LookupManufacturer(stm)
	return DeviceInfo{
		DevID:        devID,
		Manufacturer: m,
		Name:         fmt.Sprintf("Unknown device 0x%03X", devID),
		Description:  "No entry in device database",
	}
}

// Describe combines the core identification with the device database.
func Describe(t idcode.Target) DeviceInfo {
	if t.DevID == 0 {
		return DeviceInfo{Name: "Unknown device", ARMCore: t.Core, Description: "No DBGMCU device ID"}
	}
	info := LookupSTM32(t.DevID)
	if info.ARMCore == "" {
		info.ARMCore = t.Core
	}
	return info
}
