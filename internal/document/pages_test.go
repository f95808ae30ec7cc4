package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageList(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"1", []int{0}},
		{"1,3-5", []int{0, 2, 3, 4}},
		{" 5 , 2-3 ,2 ", []int{1, 2, 4}},
		{"4-4", []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePageList(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePageList_Invalid(t *testing.T) {
	for _, in := range []string{"", "0", "a", "3-1", "1-x", ","} {
		t.Run(in, func(t *testing.T) {
			_, err := ParsePageList(in)
			assert.Error(t, err)
		})
	}
}

func TestDisplayConversion(t *testing.T) {
	assert.Equal(t, []int{0, 2}, FromDisplay([]int{1, 0, 3, -2}))
	assert.Equal(t, []int{1, 3}, ToDisplay([]int{0, 2}))
	assert.Empty(t, ToDisplay(nil))
}
