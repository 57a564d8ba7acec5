package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSender(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain address", "news@shop.com", "news@shop.com"},
		{"display name", "Shop News <News@Shop.COM>", "news@shop.com"},
		{"plus alias stripped", "Deals <deals+weekly@shop.com>", "deals@shop.com"},
		{"list takes first valid", "bogus, Other <other@site.io>", "other@site.io"},
		{"empty", "", ""},
		{"garbage", "not an address", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSender(tt.input))
		})
	}
}

func TestSenderDisplayName(t *testing.T) {
	assert.Equal(t, "Shop News", SenderDisplayName("Shop News <news@shop.com>"))
	assert.Equal(t, "", SenderDisplayName("news@shop.com"))
}

func TestExtractHTTPUnsubscribeURL(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"mailto then https", "<mailto:u@list.com>, <https://list.com/u?id=1>", "https://list.com/u?id=1"},
		{"http only", "<http://x.io/unsub>", "http://x.io/unsub"},
		{"mailto only", "<mailto:u@list.com>", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractHTTPUnsubscribeURL(tt.header))
		})
	}
}

func TestExtractMailtoUnsubscribe(t *testing.T) {
	assert.Equal(t, "mailto:u@list.com", ExtractMailtoUnsubscribe("<https://x.io>, <mailto:u@list.com>"))
	assert.Equal(t, "", ExtractMailtoUnsubscribe("<https://x.io>"))
}
