package printer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Print(t *testing.T) {
	buffer := &bytes.Buffer{}
	srv := New(buffer)
	method, err := srv.Method("print")
	require.NoError(t, err)

	output := &Output{}
	require.NoError(t, method(context.Background(), &Input{Message: "hello"}, output))
	assert.Equal(t, "hello\n", buffer.String())
	assert.Equal(t, 6, output.Printed)

	assert.Error(t, method(context.Background(), "bad", output))
	_, err = srv.Method("scan")
	assert.Error(t, err)
}
