package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized container errors
var (
	ErrInvalidRange = errors.New("INVALID_RANGE")
	ErrBusy         = errors.New("BUSY")
	ErrUnavailable  = errors.New("UNAVAILABLE")
	ErrInternal     = errors.New("INTERNAL")
)

// VendorMap defines the error token mapping for a specific vendor.
type VendorMap struct {
	Range       []string // Tokens that map to INVALID_RANGE
	Busy        []string // Tokens that map to BUSY
	Unavailable []string // Tokens that map to UNAVAILABLE
}

// VendorErrorMappings contains the deterministic error mapping tables.
//
// To extend: add the vendor with its token lists, add a test per token, and
// call NormalizeVendorErrorWithVendor with the vendor ID. Vendors without a
// table fall back to "generic".
var VendorErrorMappings = map[string]VendorMap{
	"intelino": {
		Range: []string{
			"INVALID_SPEED",
			"INVALID_DIRECTION",
			"INVALID_DECISION",
			"VALUE_OUT_OF_BOUNDS",
		},
		Busy: []string{
			"COMMAND_IN_PROGRESS",
			"GATT_BUSY",
			"QUEUE_FULL",
		},
		Unavailable: []string{
			"NO_TRAIN_FOUND",
			"NOT_CONNECTED",
			"DISCONNECTED",
			"BLE_TIMEOUT",
			"ADAPTER_OFF",
			"SCAN_TIMEOUT",
		},
	},
	"generic": {
		Range: []string{
			"OUT_OF_RANGE",
			"INVALID_PARAMETER",
			"INVALID_RANGE",
			"BAD_VALUE",
		},
		Busy: []string{
			"BUSY",
			"RETRY",
			"RATE_LIMIT",
		},
		Unavailable: []string{
			"UNAVAILABLE",
			"OFFLINE",
			"NOT_READY",
			"TIMEOUT",
			"DEADLINE EXCEEDED",
			"CANCELED",
		},
	},
}

// VendorError wraps a vendor error with its normalized code.
type VendorError struct {
	Code     error       // Normalized container code
	Original error       // Vendor error
	Details  interface{} // Vendor payload (opaque)
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%v (vendor: %v)", e.Code, e.Original)
}

func (e *VendorError) Unwrap() error {
	return e.Code
}

// NormalizeVendorError maps vendor errors using the generic table.
func NormalizeVendorError(vendorErr error, vendorPayload interface{}) error {
	return NormalizeVendorErrorWithVendor(vendorErr, vendorPayload, "generic")
}

// NormalizeVendorErrorWithVendor maps vendor errors using a vendor table.
// Errors that already carry a normalized code are returned unchanged.
func NormalizeVendorErrorWithVendor(vendorErr error, vendorPayload interface{}, vendorID string) error {
	if vendorErr == nil {
		return nil
	}

	var ve *VendorError
	if errors.As(vendorErr, &ve) {
		return vendorErr
	}

	return &VendorError{
		Code:     mapVendorErrorToCode(vendorErr.Error(), vendorID),
		Original: vendorErr,
		Details:  vendorPayload,
	}
}

func mapVendorErrorToCode(msg string, vendorID string) error {
	vendorMap, exists := VendorErrorMappings[vendorID]
	if !exists {
		vendorMap = VendorErrorMappings["generic"]
	}

	upperMsg := strings.ToUpper(msg)

	for _, token := range vendorMap.Range {
		if strings.Contains(upperMsg, token) {
			return ErrInvalidRange
		}
	}
	for _, token := range vendorMap.Busy {
		if strings.Contains(upperMsg, token) {
			return ErrBusy
		}
	}
	for _, token := range vendorMap.Unavailable {
		if strings.Contains(upperMsg, token) {
			return ErrUnavailable
		}
	}

	return ErrInternal
}

// Code returns the normalized code name for err, or "" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRange):
		return ErrInvalidRange.Error()
	case errors.Is(err, ErrBusy):
		return ErrBusy.Error()
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable.Error()
	default:
		return ErrInternal.Error()
	}
}
