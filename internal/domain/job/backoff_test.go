package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	policy := NewBackoffPolicy(2 * time.Second)

	assert.Equal(t, 2*time.Second, policy.Delay(0))
	assert.Equal(t, 4*time.Second, policy.Delay(1))
	assert.Equal(t, 8*time.Second, policy.Delay(2))
	assert.Equal(t, 2*time.Second, policy.Delay(-3))
	assert.Equal(t, time.Hour, policy.Delay(30))
}

func TestNewBackoffPolicy_DefaultsBase(t *testing.T) {
	policy := NewBackoffPolicy(0)
	assert.Equal(t, time.Second, policy.Base())
}
