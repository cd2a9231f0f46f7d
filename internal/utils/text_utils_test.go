package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "hello", Fold("HELLO"))
	assert.Equal(t, "strasse", Fold("STRASSE"))
	assert.Equal(t, Fold("groß"), Fold("GROSS"))
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "clean text", SanitizeUTF8("clean text"))
	assert.Equal(t, "ab", SanitizeUTF8("a\xffb"))
}

func TestScanText(t *testing.T) {
	assert.Equal(t, "subject\nbody", ScanText("Subject", "", "Body"))
	assert.Equal(t, "", ScanText())
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("user@Example.COM"))
	assert.Equal(t, "example.com", DomainOf(`"odd@local"@example.com`))
	assert.Equal(t, "", DomainOf("no-at-sign"))
	assert.Equal(t, "", DomainOf("trailing@"))
}
