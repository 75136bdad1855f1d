package telemetry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketDialer_NoHandshakeDeadline(t *testing.T) {
	d := NewWebSocketDialer()
	assert.Zero(t, d.dialer.HandshakeTimeout)
}

func TestWebSocketDialer_CancelAbortsPendingOpen(t *testing.T) {
	// слушатель принимает TCP, но рукопожатие так и не отвечает
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			accepted <- conn
		}
		close(accepted)
	}()
	defer func() {
		_ = lis.Close()
		for conn := range accepted {
			_ = conn.Close()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := NewWebSocketDialer().Dial(ctx, "ws://"+lis.Addr().String()+StreamPath)
		result <- err
	}()

	select {
	case err := <-result:
		t.Fatalf("open finished without a server response: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-result:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelling the context did not abort the open")
	}
}
