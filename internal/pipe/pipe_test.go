package pipe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsSkip(t *testing.T) {
	assert.True(t, IsSkip(Skip("nothing to do")))
	assert.True(t, IsSkip(errors.Wrap(Skipf("%d classes", 0), "rewrite")))
	assert.False(t, IsSkip(errors.New("boom")))
	assert.Equal(t, "0 classes", Skipf("%d classes", 0).Error())
}
