// Package addr implements the bech32 account identifier and payment intent
// URI formats VASPs use to address each other's customer accounts without
// exposing stable on-chain account links.
package addr

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

const (
	// AddressLen is the byte length of an on-chain account address.
	AddressLen = 16
	// SubaddressLen is the byte length of a per-payment subaddress.
	SubaddressLen = 8
	// identifierVersion is prepended to the bech32 data part.
	identifierVersion = byte(1)

	// IntentScheme is the URI scheme of payment intents.
	IntentScheme = "vasplink"
)

var (
	ErrInvalidAccountIdentifier = errors.New("invalid account identifier")
	ErrInvalidIntentIdentifier  = errors.New("invalid intent identifier")
)

// AccountAddress is a raw on-chain account address.
type AccountAddress [AddressLen]byte

func (a AccountAddress) Hex() string {
	return fmt.Sprintf("%x", a[:])
}

// AccountAddressFromHex parses a 32-char hex account address.
func AccountAddressFromHex(s string) (AccountAddress, error) {
	var out AccountAddress
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid account address %q: %w", s, err)
	}
	if len(raw) != AddressLen {
		return out, fmt.Errorf("invalid account address length: %q", s)
	}
	copy(out[:], raw)
	return out, nil
}

// GenSubaddress returns a fresh random 8-byte subaddress.
func GenSubaddress() ([]byte, error) {
	sub := make([]byte, SubaddressLen)
	if _, err := rand.Read(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// EncodeAccount renders an account identifier: bech32 over a version byte
// plus address plus subaddress (zero-filled when nil) with the network hrp.
func EncodeAccount(address AccountAddress, subaddress []byte, hrp string) (string, error) {
	if subaddress == nil {
		subaddress = make([]byte, SubaddressLen)
	}
	if len(subaddress) != SubaddressLen {
		return "", fmt.Errorf("%w: subaddress must be %d bytes, got %d",
			ErrInvalidAccountIdentifier, SubaddressLen, len(subaddress))
	}
	raw := append(append([]byte{}, address[:]...), subaddress...)
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAccountIdentifier, err)
	}
	return bech32.Encode(hrp, append([]byte{identifierVersion}, data...))
}

// DecodeAccount parses an account identifier, checking the hrp and version.
// The subaddress is nil when it is all zeros.
func DecodeAccount(id, hrp string) (AccountAddress, []byte, error) {
	var address AccountAddress
	gotHrp, data, err := bech32.Decode(id)
	if err != nil {
		return address, nil, fmt.Errorf("%w: %v", ErrInvalidAccountIdentifier, err)
	}
	if gotHrp != hrp {
		return address, nil, fmt.Errorf("%w: expected hrp %q, got %q", ErrInvalidAccountIdentifier, hrp, gotHrp)
	}
	if len(data) == 0 || data[0] != identifierVersion {
		return address, nil, fmt.Errorf("%w: unsupported version", ErrInvalidAccountIdentifier)
	}
	raw, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return address, nil, fmt.Errorf("%w: %v", ErrInvalidAccountIdentifier, err)
	}
	if len(raw) != AddressLen+SubaddressLen {
		return address, nil, fmt.Errorf("%w: invalid payload length %d", ErrInvalidAccountIdentifier, len(raw))
	}
	copy(address[:], raw[:AddressLen])
	subaddress := raw[AddressLen:]
	if allZero(subaddress) {
		return address, nil, nil
	}
	return address, subaddress, nil
}

// Intent is a parsed payment intent URI.
type Intent struct {
	AccountID string
	Currency  string
	Amount    uint64
}

// EncodeIntent renders a payment intent URI for the given account id.
func EncodeIntent(accountID, currency string, amount uint64) string {
	return fmt.Sprintf("%s://%s?c=%s&am=%d", IntentScheme, accountID, url.QueryEscape(currency), amount)
}

// DecodeIntent parses an intent URI and validates its account id against hrp.
func DecodeIntent(intentID, hrp string) (*Intent, error) {
	u, err := url.Parse(intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntentIdentifier, err)
	}
	if u.Scheme != IntentScheme {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidIntentIdentifier, u.Scheme)
	}
	accountID := u.Host
	if accountID == "" || strings.Contains(accountID, "/") {
		return nil, fmt.Errorf("%w: missing account identifier", ErrInvalidIntentIdentifier)
	}
	if _, _, err := DecodeAccount(accountID, hrp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntentIdentifier, err)
	}
	q := u.Query()
	currency := q.Get("c")
	if currency == "" {
		return nil, fmt.Errorf("%w: missing currency", ErrInvalidIntentIdentifier)
	}
	amount, err := strconv.ParseUint(q.Get("am"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidIntentIdentifier, q.Get("am"))
	}
	return &Intent{AccountID: accountID, Currency: currency, Amount: amount}, nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
