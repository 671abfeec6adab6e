package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name string
		oks  []bool
		want string
	}{
		{"no items", nil, StatusSkipped},
		{"all succeed", []bool{true, true}, StatusSuccess},
		{"mixed", []bool{true, false}, StatusPartialSuccess},
		{"all fail", []bool{false, false}, StatusFailed},
		{"single success", []bool{true}, StatusSuccess},
		{"single failure", []bool{false}, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateStatus(tt.oks))
		})
	}
}
