package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kvstore/internal/protocol"
)

func TestResponses(t *testing.T) {
	assert.Equal(t, "Welcome to KVStore Server", protocol.Greeting)
	assert.Equal(t, "OK", protocol.RespOK)
	assert.Equal(t, "NOT_FOUND", protocol.RespNotFound)
	assert.Equal(t, "DELETED", protocol.RespDeleted)
	assert.Equal(t, "VALUE new york", protocol.Value("new york"))
	assert.Equal(t, "ERR key not found", protocol.Error("key not found"))
}
