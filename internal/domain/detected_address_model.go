package domain

import (
	"net/netip"

	"gorm.io/gorm"
)

// DetectedAddress is one address found to be fronted by the target service.
type DetectedAddress struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ScanRunID uint64 `gorm:"not null;index"`

	// Position keeps the first-detected order of the scan's result set.
	Position int    `gorm:"not null"`
	IP       string `gorm:"size:45;not null;index"`
	IPInt    uint32 `gorm:"column:ip_int;index"`

	Country      string `gorm:"size:56;not null;default:''"`
	ASN          uint   `gorm:"not null;default:0"`
	Organization string `gorm:"size:256;not null;default:''"`
}

func (address *DetectedAddress) BeforeSave(_ *gorm.DB) error {
	if address.IPInt == 0 {
		address.IPInt = IPv4ToUint32(address.IP)
	}
	return nil
}

// IPv4ToUint32 returns the big-endian integer form of an IPv4 address, or 0
// for anything else.
func IPv4ToUint32(raw string) uint32 {
	addr, err := netip.ParseAddr(raw)
	if err != nil || !addr.Is4() {
		return 0
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
