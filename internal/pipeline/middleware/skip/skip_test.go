package skip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/retrobuffer/internal/context"
)

type job struct{ skip bool }

func (j job) String() string                 { return "job" }
func (j job) Skip(ctx *context.Context) bool { return j.skip }

func TestMaybe(t *testing.T) {
	tests := []struct {
		name    string
		skipper any
		ran     bool
	}{
		{"skipped", job{skip: true}, false},
		{"not skipped", job{skip: false}, true},
		{"not a skipper", struct{}{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			err := Maybe(tt.skipper, func(ctx *context.Context) error {
				ran = true
				return nil
			})(context.New(nil))
			require.NoError(t, err)
			assert.Equal(t, tt.ran, ran)
		})
	}
}
