package model

import (
	"fmt"
	"strings"
	"time"
)

// Vendor identifies a supported PMS vendor.
type Vendor string

const (
	VendorOpera     Vendor = "OPERA"
	VendorMews      Vendor = "MEWS"
	VendorCloudbeds Vendor = "CLOUDBEDS"
	VendorProtel    Vendor = "PROTEL"
	VendorApaleo    Vendor = "APALEO"
	VendorCustom    Vendor = "CUSTOM"
)

// ParseVendor normalizes and validates a vendor name.
func ParseVendor(s string) (Vendor, error) {
	v := Vendor(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case VendorOpera, VendorMews, VendorCloudbeds, VendorProtel, VendorApaleo, VendorCustom:
		return v, nil
	}
	return "", fmt.Errorf("unknown PMS vendor %q", s)
}

// ConnectionStatus is the lifecycle state of a tenant's PMS connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusError        ConnectionStatus = "ERROR"
)

// PMSConfiguration is the per-tenant PMS connection record. The API
// credential is sealed at rest and never carried on this struct; callers
// that need it go through the store's CredentialFor.
type PMSConfiguration struct {
	TenantID   string           `json:"tenantId"`
	Vendor     Vendor           `json:"vendor"`
	PropertyID string           `json:"propertyId,omitempty"`
	APIVersion string           `json:"apiVersion,omitempty"`
	Endpoint   string           `json:"endpoint,omitempty"`
	Status     ConnectionStatus `json:"status"`
	LastSyncAt *time.Time       `json:"lastSyncAt,omitempty"`
	LastError  string           `json:"lastError,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}
