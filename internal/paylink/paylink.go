// Package paylink builds payment deep links and renders them as QR codes.
//
// A deep link looks like
//
//	upi://pay?pa=alice@okbank&am=100&pn=alice
//
// where pa is the payee's payment id, am the whole-unit amount and pn the
// payee name shown by the paying app. Scanning the QR opens the link in the
// supporter's payment app with every field pre-filled.
package paylink

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultScheme is used when Link.Scheme is empty.
const DefaultScheme = "upi"

// DefaultQRSize is the PNG edge length in pixels.
const DefaultQRSize = 256

// Link is everything a payment app needs to pre-fill a transfer.
type Link struct {
	Scheme    string
	PaymentID string
	Amount    int64
	Name      string
	Currency  string // optional; appended as cu=
}

// String renders the deep link.
//
// pa is written as-is: payment ids are validated to [A-Za-z0-9._-]@[A-Za-z0-9]
// and many payment apps reject a percent-encoded '@'. pn is query-escaped
// because handles may contain '+'.
func (l Link) String() string {
	scheme := l.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://pay?pa=")
	b.WriteString(l.PaymentID)
	b.WriteString("&am=")
	b.WriteString(strconv.FormatInt(l.Amount, 10))
	b.WriteString("&pn=")
	b.WriteString(url.QueryEscape(l.Name))
	if l.Currency != "" {
		b.WriteString("&cu=")
		b.WriteString(url.QueryEscape(l.Currency))
	}
	return b.String()
}

// BuildDeepLink is the common case: default scheme, no currency.
func BuildDeepLink(paymentID string, amount int64, name string) string {
	return Link{PaymentID: paymentID, Amount: amount, Name: name}.String()
}

// EncodePNG renders content as a QR code PNG of size×size pixels.
func EncodePNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("paylink: encoding qr code: %w", err)
	}
	return png, nil
}

// DataURI renders content as a QR code and returns it as a data: URI that
// can be dropped straight into an <img src>.
func DataURI(content string, size int) (string, error) {
	png, err := EncodePNG(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Terminal renders content as a QR code drawn with Unicode half blocks,
// two modules per character row, for printing to a terminal.
func Terminal(content string) (string, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("paylink: encoding qr code: %w", err)
	}
	return q.ToSmallString(false), nil
}
