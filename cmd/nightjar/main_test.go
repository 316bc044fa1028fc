package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCounts(t *testing.T) {

	tests := []struct {
		name   string
		counts map[string]int
		want   string
	}{
		{"empty", nil, "none"},
		{"single", map[string]int{"nightjar": 2}, "nightjar=2"},
		{"sorted", map[string]int{"fox": 1, "egg": 3, "nightjar": 2}, "egg=3 fox=1 nightjar=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCounts(tt.counts))
		})
	}
}
