package paylink

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDeepLink(t *testing.T) {
	got := BuildDeepLink("alice@okbank", 100, "alice")
	assert.Equal(t, "upi://pay?pa=alice@okbank&am=100&pn=alice", got)
}

func TestLinkString(t *testing.T) {
	tests := []struct {
		name string
		link Link
		want string
	}{
		{
			name: "custom scheme",
			link: Link{Scheme: "pay", PaymentID: "bob@ybl", Amount: 5, Name: "bob"},
			want: "pay://pay?pa=bob@ybl&am=5&pn=bob",
		},
		{
			name: "name is query escaped",
			link: Link{PaymentID: "bob@ybl", Amount: 5, Name: "bob+co"},
			want: "upi://pay?pa=bob@ybl&am=5&pn=bob%2Bco",
		},
		{
			name: "currency appended",
			link: Link{PaymentID: "bob@ybl", Amount: 250, Name: "Bob", Currency: "INR"},
			want: "upi://pay?pa=bob@ybl&am=250&pn=Bob&cu=INR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.link.String())
		})
	}
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(BuildDeepLink("alice@okbank", 100, "alice"), 128)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}

func TestEncodePNG_DefaultSize(t *testing.T) {
	data, err := EncodePNG("upi://pay?pa=abc@abc&am=1&pn=a", 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultQRSize, img.Bounds().Dx())
}

func TestDataURI(t *testing.T) {
	uri, err := DataURI("upi://pay?pa=abc@abc&am=1&pn=a", 64)
	require.NoError(t, err)

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(uri, prefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}

func TestTerminal(t *testing.T) {
	out, err := Terminal(BuildDeepLink("alice@okbank", 100, "alice"))
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Greater(t, strings.Count(out, "\n"), 10)
}
