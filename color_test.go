// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import "testing"

func TestColourString(t *testing.T) {
	var stringTests = []struct {
		c        colour
		expected string
	}{
		{black, "black"},
		{purple, "purple"},
		{gray, "gray"},
		{white, "white"},
		{colour(99), "unknown"},
	}
	for _, tt := range stringTests {
		if actual := tt.c.String(); actual != tt.expected {
			t.Errorf("colour(%d).String(): expected %q, actual %q", tt.c, tt.expected, actual)
		}
	}
}
