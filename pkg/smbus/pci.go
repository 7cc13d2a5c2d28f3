package smbus

import (
	"github.com/siderolabs/go-pcidb/pkg/pcidb"
)

// pciNames resolves the vendor and device of the PCI function backing bus.
// Either name is empty when unknown.
func pciNames(bus Bus) (vendor, device string) {
	vendorID, ok := bus.ParentVendor()
	if !ok {
		return "", ""
	}
	vendor, _ = pcidb.LookupVendor(vendorID)

	if deviceID, ok := bus.ParentDevice(); ok {
		device, _ = pcidb.LookupProduct(vendorID, deviceID)
	}
	return vendor, device
}
