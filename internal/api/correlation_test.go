package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationStore_NewestWins(t *testing.T) {
	s := NewCorrelationStore()

	s.Record("/v1/dashboards", "req-1")
	s.Record("/v1/annotations", "req-2")
	s.Record("/v1/dashboards", "req-3")

	assert.Equal(t, "req-3", s.Last())
	assert.Equal(t, "req-3", s.ForURL("/v1/dashboards"))
	assert.Equal(t, "req-2", s.ForURL("/v1/annotations"))
	assert.Equal(t, "", s.ForURL("/v1/unknown"))
}

func TestCorrelationStore_EmptyIDIgnored(t *testing.T) {
	s := NewCorrelationStore()

	s.Record("/v1/dashboards", "req-1")
	s.Record("/v1/dashboards", "")

	assert.Equal(t, "req-1", s.Last())
	assert.Equal(t, "req-1", s.ForURL("/v1/dashboards"))
}

func TestCorrelationStore_Reset(t *testing.T) {
	s := NewCorrelationStore()
	s.Record("/v1/dashboards", "req-1")

	s.Reset()

	assert.Equal(t, "", s.Last())
	assert.Equal(t, "", s.ForURL("/v1/dashboards"))
}
