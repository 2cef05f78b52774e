package mediatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFormat(t *testing.T) {
	tests := []struct {
		name   string
		ext    string
		want   Format
		wantOK bool
	}{
		{name: "Canon CR2", ext: ".cr2", want: FormatCR2, wantOK: true},
		{name: "uppercase CR3", ext: ".CR3", want: FormatCR3, wantOK: true},
		{name: "Nikon NEF", ext: ".nef", want: FormatNEF, wantOK: true},
		{name: "Sony ARW mixed case", ext: ".Arw", want: FormatARW, wantOK: true},
		{name: "Fuji RAF", ext: ".raf", want: FormatRAF, wantOK: true},
		{name: "DNG", ext: ".dng", want: FormatDNG, wantOK: true},
		{name: "JPEG is not RAW", ext: ".jpg", wantOK: false},
		{name: "sidecar is not RAW", ext: ".xmp", wantOK: false},
		{name: "empty extension", ext: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetFormat(tt.ext)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, IsRaw(tt.ext))
		})
	}
}

func TestIsTIFFBased(t *testing.T) {
	assert.True(t, FormatCR2.IsTIFFBased())
	assert.True(t, FormatDNG.IsTIFFBased())
	assert.False(t, FormatCR3.IsTIFFBased())
	assert.False(t, FormatRAF.IsTIFFBased())
}

func TestSupportedExtensionsMatchTable(t *testing.T) {
	exts := SupportedExtensions()
	assert.Len(t, exts, len(RawExtensions))
	for _, ext := range exts {
		assert.True(t, IsRaw(ext), ext)
	}
}
