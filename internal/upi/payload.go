package upi

import (
	"errors"
	"net/url"
	"strings"
)

const scheme = "upi://pay?"

// ErrNotUPI means the scanned text is not a UPI payment QR payload.
var ErrNotUPI = errors.New("not a upi payment payload")

// Payload holds the fields of a upi://pay deep link. Parameter names follow
// the NPCI convention: pa (payee address), pn (payee name), am (amount),
// cu (currency), tn (transaction note), mc (merchant code).
type Payload struct {
	PayeeAddress string
	PayeeName    string
	Amount       string
	Currency     string
	Note         string
	MerchantCode string
}

// Valid reports whether the payload carries the one mandatory field.
func (p Payload) Valid() bool {
	return p.PayeeAddress != ""
}

// Parse decodes a scanned QR string. Both the upi://pay?… form and a bare
// parameter string containing pa= are accepted, as wallet apps emit both.
func Parse(raw string) (Payload, error) {
	lower := strings.ToLower(raw)
	if !strings.Contains(lower, "upi://pay") && !strings.Contains(lower, "pa=") {
		return Payload{}, ErrNotUPI
	}

	paramString := raw
	if strings.HasPrefix(lower, scheme) {
		paramString = raw[len(scheme):]
	}

	params, err := url.ParseQuery(paramString)
	if err != nil {
		return Payload{}, ErrNotUPI
	}

	p := Payload{
		PayeeAddress: params.Get("pa"),
		PayeeName:    params.Get("pn"),
		Amount:       params.Get("am"),
		Currency:     params.Get("cu"),
		Note:         params.Get("tn"),
		MerchantCode: params.Get("mc"),
	}
	if p.Currency == "" {
		p.Currency = "INR"
	}
	if !p.Valid() {
		return Payload{}, ErrNotUPI
	}
	return p, nil
}

// Build renders the payload back into the deep-link form suitable for QR
// generation.
func Build(p Payload) string {
	values := url.Values{}
	values.Set("pa", p.PayeeAddress)
	if p.PayeeName != "" {
		values.Set("pn", p.PayeeName)
	}
	if p.Amount != "" {
		values.Set("am", p.Amount)
	}
	if p.Currency != "" {
		values.Set("cu", p.Currency)
	}
	if p.Note != "" {
		values.Set("tn", p.Note)
	}
	if p.MerchantCode != "" {
		values.Set("mc", p.MerchantCode)
	}
	return scheme + values.Encode()
}
