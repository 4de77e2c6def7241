//go:build unit

package qr_test

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"booking-checkout/internal/infra/qr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestDataURI(t *testing.T) {
	t.Run("正常系: PNGのdata URIを返す", func(t *testing.T) {
		uri, err := qr.DataURI("00020126580014br.gov.bcb.pix0136")

		require.NoError(t, err)
		raw, ok := strings.CutPrefix(uri, "data:image/png;base64,")
		require.True(t, ok)
		png, err := base64.StdEncoding.DecodeString(raw)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, pngMagic))
	})

	t.Run("異常系: 空のペイロードはエラー", func(t *testing.T) {
		_, err := qr.DataURI("")

		assert.Error(t, err)
	})
}
