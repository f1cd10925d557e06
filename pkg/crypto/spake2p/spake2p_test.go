package spake2p

import (
	"bytes"
	"errors"
	"testing"

	"github.com/backkem/serialpake/pkg/crypto"
)

func derive(t *testing.T, password string) (w0, w1, L []byte) {
	t.Helper()
	ws := crypto.PBKDF2SHA256([]byte(password), []byte("SPAKE2P Key Salt"), 1000, 2*WsSizeBytes)
	w0, w1, err := ComputeW0W1(ws)
	if err != nil {
		t.Fatalf("ComputeW0W1 failed: %v", err)
	}
	L, err = ComputeL(w1)
	if err != nil {
		t.Fatalf("ComputeL failed: %v", err)
	}
	return w0, w1, L
}

func newPair(t *testing.T, proverPassword, verifierPassword string) (*SPAKE2P, *SPAKE2P) {
	t.Helper()
	context := crypto.SHA256Slice([]byte("test context"))

	pw0, pw1, _ := derive(t, proverPassword)
	vw0, _, vL := derive(t, verifierPassword)

	prover, err := NewProver(context, []byte("client"), []byte("server"), pw0, pw1)
	if err != nil {
		t.Fatalf("NewProver failed: %v", err)
	}
	verifier, err := NewVerifier(context, []byte("client"), []byte("server"), vw0, vL)
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	return prover, verifier
}

func exchangeShares(t *testing.T, prover, verifier *SPAKE2P) {
	t.Helper()

	x, err := prover.GenerateShare()
	if err != nil {
		t.Fatalf("prover GenerateShare failed: %v", err)
	}
	y, err := verifier.GenerateShare()
	if err != nil {
		t.Fatalf("verifier GenerateShare failed: %v", err)
	}
	if err := verifier.ProcessPeerShare(x); err != nil {
		t.Fatalf("verifier ProcessPeerShare failed: %v", err)
	}
	if err := prover.ProcessPeerShare(y); err != nil {
		t.Fatalf("prover ProcessPeerShare failed: %v", err)
	}
}

func TestExchangeMatchingPassword(t *testing.T) {
	prover, verifier := newPair(t, "hunter2", "hunter2")
	exchangeShares(t, prover, verifier)

	cP, err := prover.Confirmation()
	if err != nil {
		t.Fatalf("prover Confirmation failed: %v", err)
	}
	if err := verifier.VerifyPeerConfirmation(cP); err != nil {
		t.Fatalf("verifier rejected prover confirmation: %v", err)
	}
	cV, err := verifier.Confirmation()
	if err != nil {
		t.Fatalf("verifier Confirmation failed: %v", err)
	}
	if err := prover.VerifyPeerConfirmation(cV); err != nil {
		t.Fatalf("prover rejected verifier confirmation: %v", err)
	}

	kP, _ := prover.SharedSecret()
	kV, _ := verifier.SharedSecret()
	if len(kP) != SharedKeySizeBytes {
		t.Fatalf("shared key is %d bytes", len(kP))
	}
	if !bytes.Equal(kP, kV) {
		t.Error("shared secrets differ")
	}
	if !prover.Confirmed() || !verifier.Confirmed() {
		t.Error("both sides should be confirmed")
	}
	if bytes.Equal(cP, cV) {
		t.Error("confirmations must be direction-specific")
	}
}

func TestExchangeWrongPassword(t *testing.T) {
	prover, verifier := newPair(t, "hunter3", "hunter2")
	exchangeShares(t, prover, verifier)

	cP, _ := prover.Confirmation()
	if err := verifier.VerifyPeerConfirmation(cP); !errors.Is(err, ErrConfirmationFailed) {
		t.Fatalf("expected ErrConfirmationFailed, got %v", err)
	}

	kP, _ := prover.SharedSecret()
	kV, _ := verifier.SharedSecret()
	if bytes.Equal(kP, kV) {
		t.Error("implicit keys must differ with the wrong password")
	}
}

func TestContextBinding(t *testing.T) {
	w0, w1, L := derive(t, "pw")

	prover, _ := NewProver([]byte("ctx-a"), nil, nil, w0, w1)
	verifier, _ := NewVerifier([]byte("ctx-b"), nil, nil, w0, L)
	exchangeShares(t, prover, verifier)

	cP, _ := prover.Confirmation()
	if err := verifier.VerifyPeerConfirmation(cP); !errors.Is(err, ErrConfirmationFailed) {
		t.Errorf("context mismatch must fail confirmation, got %v", err)
	}
}

func TestStateErrors(t *testing.T) {
	prover, verifier := newPair(t, "pw", "pw")

	if _, err := prover.Confirmation(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Confirmation before exchange: got %v", err)
	}
	if _, err := prover.SharedSecret(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SharedSecret before exchange: got %v", err)
	}
	if err := verifier.ProcessPeerShare(make([]byte, PointSizeBytes)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ProcessPeerShare before GenerateShare: got %v", err)
	}

	if _, err := prover.GenerateShare(); err != nil {
		t.Fatalf("GenerateShare failed: %v", err)
	}
	if _, err := prover.GenerateShare(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second GenerateShare: got %v", err)
	}
	if err := prover.ProcessPeerShare([]byte{0x04}); !errors.Is(err, ErrInvalidShareSize) {
		t.Errorf("short share: got %v", err)
	}
	if err := prover.ProcessPeerShare(make([]byte, PointSizeBytes)); !errors.Is(err, ErrInvalidPointOnCurve) {
		t.Errorf("invalid share: got %v", err)
	}
}

func TestConstructorValidation(t *testing.T) {
	w0, w1, L := derive(t, "pw")

	if _, err := NewProver(nil, nil, nil, w0[:31], w1); !errors.Is(err, ErrInvalidW0Size) {
		t.Errorf("short w0: got %v", err)
	}
	if _, err := NewProver(nil, nil, nil, w0, w1[:1]); !errors.Is(err, ErrInvalidW1Size) {
		t.Errorf("short w1: got %v", err)
	}
	if _, err := NewVerifier(nil, nil, nil, w0, L[:64]); !errors.Is(err, ErrInvalidLSize) {
		t.Errorf("short L: got %v", err)
	}
	bad := append([]byte(nil), L...)
	bad[10] ^= 0xFF
	if _, err := NewVerifier(nil, nil, nil, w0, bad); !errors.Is(err, ErrInvalidPointOnCurve) {
		t.Errorf("off-curve L: got %v", err)
	}
	if _, _, err := ComputeW0W1(make([]byte, 79)); !errors.Is(err, ErrInvalidWsSize) {
		t.Errorf("short ws: got %v", err)
	}
}
