package pake

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/backkem/serialpake/pkg/credential"
	"github.com/backkem/serialpake/pkg/wire"
)

var testParams = MustParseParams("pbkdf2-sha256,i=1000")

type pair struct {
	server *Server
	client *Client
	store  credential.Store
}

func newPair(t *testing.T, aug Augmenter) *pair {
	t.Helper()

	store, err := credential.NewSingleUser(credential.DefaultCapacity)
	if err != nil {
		t.Fatalf("NewSingleUser() error = %v", err)
	}
	srv, err := NewServer(ServerOptions{Augmenter: aug, DecoyParams: &testParams})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return &pair{
		server: srv,
		client: NewClient(ClientOptions{Augmenter: aug}),
		store:  store,
	}
}

func (p *pair) register(t *testing.T, username, password string) {
	t.Helper()

	msg, err := p.client.Register([]byte(username), []byte(password), testParams)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	ok, err := p.server.Augmenter().Enroll(msg, p.store)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if !ok {
		t.Fatal("Enroll() rejected registration")
	}
}

// exchanged runs a handshake up to the public key exchange.
func (p *pair) exchanged(t *testing.T, username, password string, ci []byte) (*ServerExchanged, *ClientExchanged, *ServerAugmented) {
	t.Helper()

	sNonce, sNonceMsg, err := p.server.Begin()
	if err != nil {
		t.Fatalf("server Begin() error = %v", err)
	}
	cNonce, cNonceMsg, err := p.client.Begin()
	if err != nil {
		t.Fatalf("client Begin() error = %v", err)
	}

	sSSID, err := sNonce.AgreeSSID(cNonceMsg)
	if err != nil {
		t.Fatalf("server AgreeSSID() error = %v", err)
	}
	cSSID, err := cNonce.AgreeSSID(sNonceMsg)
	if err != nil {
		t.Fatalf("client AgreeSSID() error = %v", err)
	}
	if !bytes.Equal(sSSID.SSID(), cSSID.SSID()) {
		t.Fatal("SSID mismatch")
	}

	cAug, userMsg, err := cSSID.Augment([]byte(username), []byte(password))
	if err != nil {
		t.Fatalf("client Augment() error = %v", err)
	}
	sAug, info, err := sSSID.Augment(userMsg, p.store)
	if err != nil {
		t.Fatalf("server Augment() error = %v", err)
	}
	cAugmented, err := cAug.ReceiveAugmentationInfo(info)
	if err != nil {
		t.Fatalf("ReceiveAugmentationInfo() error = %v", err)
	}

	cKeyed, cPub, err := cAugmented.GeneratePublicKey(ci)
	if err != nil {
		t.Fatalf("client GeneratePublicKey() error = %v", err)
	}
	sKeyed, sPub, err := sAug.GeneratePublicKey(ci)
	if err != nil {
		t.Fatalf("server GeneratePublicKey() error = %v", err)
	}

	sEx, err := sKeyed.ReceiveClientPublicKey(cPub)
	if err != nil {
		t.Fatalf("ReceiveClientPublicKey() error = %v", err)
	}
	cEx, err := cKeyed.ReceiveServerPublicKey(sPub)
	if err != nil {
		t.Fatalf("ReceiveServerPublicKey() error = %v", err)
	}
	return sEx, cEx, sAug
}

func TestHandshakeExplicit(t *testing.T) {
	for _, aug := range []Augmenter{PlainAugmenter{}, StrongAugmenter{}} {
		t.Run(aug.Family().String(), func(t *testing.T) {
			p := newPair(t, aug)
			p.register(t, "alice", "correct horse")

			sEx, cEx, sAug := p.exchanged(t, "alice", "correct horse", []byte("ch0"))
			if !sAug.KnownUser() {
				t.Error("KnownUser() = false for registered user")
			}

			confirming, cAuth, err := cEx.Authenticator()
			if err != nil {
				t.Fatalf("Authenticator() error = %v", err)
			}
			sKey, sAuth, err := sEx.ReceiveClientAuthenticator(cAuth)
			if err != nil {
				t.Fatalf("ReceiveClientAuthenticator() error = %v", err)
			}
			cKey, err := confirming.ReceiveServerAuthenticator(sAuth)
			if err != nil {
				t.Fatalf("ReceiveServerAuthenticator() error = %v", err)
			}

			if len(sKey) != SessionKeySize {
				t.Errorf("session key len = %d, want %d", len(sKey), SessionKeySize)
			}
			if !sKey.Equal(cKey) {
				t.Error("session keys differ")
			}
		})
	}
}

func TestHandshakeWrongPassword(t *testing.T) {
	for _, aug := range []Augmenter{PlainAugmenter{}, StrongAugmenter{}} {
		t.Run(aug.Family().String(), func(t *testing.T) {
			p := newPair(t, aug)
			p.register(t, "alice", "correct horse")

			sEx, cEx, _ := p.exchanged(t, "alice", "battery staple", nil)

			_, cAuth, err := cEx.Authenticator()
			if err != nil {
				t.Fatalf("Authenticator() error = %v", err)
			}
			if _, _, err := sEx.ReceiveClientAuthenticator(cAuth); !errors.Is(err, ErrAuthenticationFailed) {
				t.Errorf("ReceiveClientAuthenticator() error = %v, want ErrAuthenticationFailed", err)
			}
		})
	}
}

func TestHandshakeImplicit(t *testing.T) {
	for _, aug := range []Augmenter{PlainAugmenter{}, StrongAugmenter{}} {
		t.Run(aug.Family().String(), func(t *testing.T) {
			p := newPair(t, aug)
			p.register(t, "alice", "correct horse")

			sEx, cEx, _ := p.exchanged(t, "alice", "correct horse", nil)
			sKey, err := sEx.ImplicitKey()
			if err != nil {
				t.Fatalf("server ImplicitKey() error = %v", err)
			}
			cKey, err := cEx.ImplicitKey()
			if err != nil {
				t.Fatalf("client ImplicitKey() error = %v", err)
			}
			if !sKey.Equal(cKey) {
				t.Error("implicit keys differ for the right password")
			}

			sEx, cEx, _ = p.exchanged(t, "alice", "wrong", nil)
			sKey, _ = sEx.ImplicitKey()
			cKey, _ = cEx.ImplicitKey()
			if sKey.Equal(cKey) {
				t.Error("implicit keys match for a wrong password")
			}
		})
	}
}

func TestHandshakeChannelBinding(t *testing.T) {
	p := newPair(t, PlainAugmenter{})
	p.register(t, "alice", "pw")

	sNonce, sNonceMsg, _ := p.server.Begin()
	cNonce, cNonceMsg, _ := p.client.Begin()
	sSSID, _ := sNonce.AgreeSSID(cNonceMsg)
	cSSID, _ := cNonce.AgreeSSID(sNonceMsg)

	cAug, userMsg, _ := cSSID.Augment([]byte("alice"), []byte("pw"))
	sAug, info, _ := sSSID.Augment(userMsg, p.store)
	cAugmented, _ := cAug.ReceiveAugmentationInfo(info)

	cKeyed, cPub, _ := cAugmented.GeneratePublicKey([]byte("channel a"))
	sKeyed, sPub, _ := sAug.GeneratePublicKey([]byte("channel b"))
	sEx, err := sKeyed.ReceiveClientPublicKey(cPub)
	if err != nil {
		t.Fatalf("ReceiveClientPublicKey() error = %v", err)
	}
	cEx, err := cKeyed.ReceiveServerPublicKey(sPub)
	if err != nil {
		t.Fatalf("ReceiveServerPublicKey() error = %v", err)
	}

	_, cAuth, _ := cEx.Authenticator()
	if _, _, err := sEx.ReceiveClientAuthenticator(cAuth); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("mismatched channel ids: error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestUnknownUserGetsDecoy(t *testing.T) {
	for _, aug := range []Augmenter{PlainAugmenter{}, StrongAugmenter{}} {
		t.Run(aug.Family().String(), func(t *testing.T) {
			p := newPair(t, aug)
			p.register(t, "alice", "pw")

			sEx, cEx, sAug := p.exchanged(t, "mallory", "pw", nil)
			if sAug.KnownUser() {
				t.Error("KnownUser() = true for unknown user")
			}

			_, cAuth, err := cEx.Authenticator()
			if err != nil {
				t.Fatalf("Authenticator() error = %v", err)
			}
			if _, _, err := sEx.ReceiveClientAuthenticator(cAuth); !errors.Is(err, ErrAuthenticationFailed) {
				t.Errorf("error = %v, want ErrAuthenticationFailed", err)
			}
		})
	}
}

func TestDecoyIsStable(t *testing.T) {
	srv, err := NewServer(ServerOptions{DecoyParams: &testParams, DecoyKey: []byte("decoy key")})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	store, _ := credential.NewSingleUser(credential.DefaultCapacity)

	augment := func() *wire.AugmentationInfo {
		n, _, _ := srv.Begin()
		ssid, err := n.AgreeSSID(&wire.Nonce{Nonce: make([]byte, NonceSize)})
		if err != nil {
			t.Fatalf("AgreeSSID() error = %v", err)
		}
		_, info, err := ssid.GenerateClientInfo([]byte("nobody"), store)
		if err != nil {
			t.Fatalf("GenerateClientInfo() error = %v", err)
		}
		return info
	}

	a, b := augment(), augment()
	if !bytes.Equal(a.Payload, b.Payload) {
		t.Error("decoy augmentation differs between sessions")
	}

	payload, params, err := decodePayload(a)
	if err != nil {
		t.Fatalf("decodePayload() error = %v", err)
	}
	if params != testParams {
		t.Errorf("decoy params = %v, want %v", params, testParams)
	}
	if len(payload.Salt) != SaltSize {
		t.Errorf("decoy salt len = %d, want %d", len(payload.Salt), SaltSize)
	}
}

func TestTokenSpent(t *testing.T) {
	p := newPair(t, PlainAugmenter{})
	p.register(t, "alice", "pw")

	sNonce, _, _ := p.server.Begin()
	_, cNonceMsg, _ := p.client.Begin()

	if _, err := sNonce.AgreeSSID(cNonceMsg); err != nil {
		t.Fatalf("AgreeSSID() error = %v", err)
	}
	if _, err := sNonce.AgreeSSID(cNonceMsg); !errors.Is(err, ErrTokenSpent) {
		t.Errorf("second AgreeSSID() error = %v, want ErrTokenSpent", err)
	}

	sEx, cEx, _ := p.exchanged(t, "alice", "pw", nil)
	if _, err := cEx.ImplicitKey(); err != nil {
		t.Fatalf("ImplicitKey() error = %v", err)
	}
	if _, _, err := cEx.Authenticator(); !errors.Is(err, ErrTokenSpent) {
		t.Errorf("Authenticator() after ImplicitKey() error = %v, want ErrTokenSpent", err)
	}

	_, other, _ := p.exchanged(t, "alice", "pw", nil)
	_, cAuth, err := other.Authenticator()
	if err != nil {
		t.Fatalf("Authenticator() error = %v", err)
	}
	if _, _, err := sEx.ReceiveClientAuthenticator(cAuth); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("foreign authenticator error = %v, want ErrAuthenticationFailed", err)
	}
	if _, _, err := sEx.ReceiveClientAuthenticator(cAuth); !errors.Is(err, ErrTokenSpent) {
		t.Errorf("second ReceiveClientAuthenticator() error = %v, want ErrTokenSpent", err)
	}
}

func TestInvalidNonce(t *testing.T) {
	p := newPair(t, PlainAugmenter{})
	sNonce, _, _ := p.server.Begin()
	if _, err := sNonce.AgreeSSID(&wire.Nonce{Nonce: []byte{1, 2, 3}}); !errors.Is(err, ErrInvalidNonce) {
		t.Errorf("AgreeSSID() error = %v, want ErrInvalidNonce", err)
	}
}

func TestWrongFamily(t *testing.T) {
	p := newPair(t, PlainAugmenter{})

	sNonce, _, _ := p.server.Begin()
	ssid, _ := sNonce.AgreeSSID(&wire.Nonce{Nonce: make([]byte, NonceSize)})
	_, _, err := ssid.GenerateClientInfoStrong([]byte("alice"), make([]byte, 65), p.store)
	if !errors.Is(err, ErrWrongFamily) {
		t.Errorf("GenerateClientInfoStrong() on plain server error = %v, want ErrWrongFamily", err)
	}

	cNonce, _, _ := p.client.Begin()
	cSSID, _ := cNonce.AgreeSSID(&wire.Nonce{Nonce: make([]byte, NonceSize)})
	if _, _, err := cSSID.StartAugmentationStrong([]byte("alice"), []byte("pw")); !errors.Is(err, ErrWrongFamily) {
		t.Errorf("StartAugmentationStrong() on plain client error = %v, want ErrWrongFamily", err)
	}

	reg, err := RegisterStrong([]byte("alice"), []byte("pw"), testParams, rand.Reader)
	if err != nil {
		t.Fatalf("RegisterStrong() error = %v", err)
	}
	if _, err := (PlainAugmenter{}).Enroll(reg, p.store); !errors.Is(err, ErrWrongFamily) {
		t.Errorf("Enroll() error = %v, want ErrWrongFamily", err)
	}
}

func TestEnrollCapacity(t *testing.T) {
	store, _ := credential.NewSingleUser(5)

	for _, aug := range []Augmenter{PlainAugmenter{}, StrongAugmenter{}} {
		t.Run(aug.Family().String(), func(t *testing.T) {
			at, _ := aug.Register([]byte("alice"), []byte("pw"), testParams, rand.Reader)
			ok, err := aug.Enroll(at, store)
			if err != nil || !ok {
				t.Fatalf("Enroll(at capacity) = %v, %v, want true, nil", ok, err)
			}

			over, _ := aug.Register([]byte("alice!"), []byte("pw"), testParams, rand.Reader)
			ok, err = aug.Enroll(over, store)
			if err != nil || ok {
				t.Fatalf("Enroll(over capacity) = %v, %v, want false, nil", ok, err)
			}

			if _, found := store.Lookup([]byte("alice")); !found {
				t.Error("record at capacity lost after over-capacity enroll")
			}
			if _, found := store.Lookup([]byte("alice!")); found {
				t.Error("over-capacity record stored")
			}
		})
	}
}

func TestEnrollRejectsBadVerifier(t *testing.T) {
	store, _ := credential.NewSingleUser(credential.DefaultCapacity)
	reg := &wire.Registration{
		Username: []byte("alice"),
		Salt:     make([]byte, SaltSize),
		Params:   testParams.String(),
		Verifier: make([]byte, VerifierSize),
	}
	if _, err := (PlainAugmenter{}).Enroll(reg, store); !errors.Is(err, ErrInvalidVerifier) {
		t.Errorf("Enroll() error = %v, want ErrInvalidVerifier", err)
	}

	reg.Verifier = []byte{1, 2, 3}
	if _, err := (PlainAugmenter{}).Enroll(reg, store); !errors.Is(err, ErrInvalidVerifier) {
		t.Errorf("Enroll() error = %v, want ErrInvalidVerifier", err)
	}
}

func TestRegisterEmptyUsername(t *testing.T) {
	if _, err := Register(nil, []byte("pw"), testParams, rand.Reader); !errors.Is(err, ErrInvalidRegistration) {
		t.Errorf("Register() error = %v, want ErrInvalidRegistration", err)
	}
	if _, err := RegisterStrong(nil, []byte("pw"), testParams, rand.Reader); !errors.Is(err, ErrInvalidRegistration) {
		t.Errorf("RegisterStrong() error = %v, want ErrInvalidRegistration", err)
	}
}

func TestStrongRegistrationHidesSalt(t *testing.T) {
	reg, err := RegisterStrong([]byte("alice"), []byte("pw"), testParams, rand.Reader)
	if err != nil {
		t.Fatalf("RegisterStrong() error = %v", err)
	}

	p := newPair(t, StrongAugmenter{})
	if ok, err := p.server.Augmenter().Enroll(reg, p.store); err != nil || !ok {
		t.Fatalf("Enroll() = %v, %v", ok, err)
	}

	_, _, sAug := p.exchanged(t, "alice", "pw", nil)
	payload, _, err := decodePayload(sAug.aug.Info)
	if err != nil {
		t.Fatalf("decodePayload() error = %v", err)
	}
	if len(payload.Salt) != 0 {
		t.Error("strong augmentation sent a salt")
	}
	if len(payload.Evaluated) == 0 {
		t.Error("strong augmentation missing evaluated point")
	}
}
