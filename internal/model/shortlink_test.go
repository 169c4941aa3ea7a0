package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortlink_SlugAndPrefix(t *testing.T) {
	tests := []struct {
		path   string
		slug   string
		prefix string
	}{
		{"go/aB3-dE", "aB3-dE", "go"},
		{"promo/x/summer", "summer", "promo/x"},
		{"bare", "bare", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s := &Shortlink{Path: tt.path}
			assert.Equal(t, tt.slug, s.Slug())
			assert.Equal(t, tt.prefix, s.Prefix())
		})
	}
}

func TestFullPath(t *testing.T) {
	assert.Equal(t, "go/abc", FullPath("go", "abc"))
	assert.Equal(t, "go/abc", FullPath("/go/", "abc"))
	assert.Equal(t, "abc", FullPath("", "abc"))
}

func TestShortlink_DestinationKind(t *testing.T) {
	s := &Shortlink{TargetEntityType: "node", TargetEntityID: "42"}
	assert.True(t, s.HasTarget())
	assert.False(t, s.HasOverride())

	s = &Shortlink{TargetEntityType: "node", DestinationOverride: "  "}
	assert.False(t, s.HasTarget())
	assert.False(t, s.HasOverride())

	s = &Shortlink{DestinationOverride: "/products/42"}
	assert.True(t, s.HasOverride())
}
