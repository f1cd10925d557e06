package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTCPStream(t *testing.T) {
	ln, err := ListenTCP(TCPConfig{Address: "127.0.0.1:0", ReadTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("ListenTCP() error = %v", err)
	}
	defer ln.Close()

	accepted := make(chan *Stream, 1)
	go func() {
		s, err := ln.Accept(context.Background())
		if err != nil {
			t.Errorf("Accept() error = %v", err)
		}
		accepted <- s
	}()

	client, err := DialTCP(TCPConfig{Address: ln.Addr().String(), ReadTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("DialTCP() error = %v", err)
	}
	defer client.Close()

	server := <-accepted
	if server == nil {
		t.Fatal("no accepted stream")
	}
	defer server.Close()

	t.Run("read timeout is not an error", func(t *testing.T) {
		n, err := server.Read(make([]byte, 16))
		if n != 0 || err != nil {
			t.Errorf("Read() = %d, %v, want 0, nil", n, err)
		}
	})

	t.Run("bytes flow", func(t *testing.T) {
		if _, err := client.Write([]byte("hello\x00")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		var got []byte
		buf := make([]byte, 16)
		for i := 0; i < 50 && len(got) < 6; i++ {
			n, err := server.Read(buf)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			got = append(got, buf[:n]...)
		}
		if string(got) != "hello\x00" {
			t.Errorf("Read() = %q, want %q", got, "hello\x00")
		}
	})
}

func TestTCPListenerAcceptCancel(t *testing.T) {
	ln, err := ListenTCP(TCPConfig{Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("ListenTCP() error = %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := ln.Accept(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Accept() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestDialTCPNoAddress(t *testing.T) {
	if _, err := DialTCP(TCPConfig{}); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("DialTCP() error = %v, want ErrInvalidEndpoint", err)
	}
}
