package crypto

import (
	"testing"
	"time"
)

func TestSignQueryKnownVector(t *testing.T) {
	// Vector from the Binance signed-endpoint documentation.
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"

	if got := SignQuery(secret, query); got != want {
		t.Errorf("SignQuery = %s, want %s", got, want)
	}
}

func TestVerify(t *testing.T) {
	sig := SignQuery("s3cret", "hello")
	if !Verify("s3cret", "hello", sig) {
		t.Error("valid signature rejected")
	}
	if Verify("s3cret", "tampered", sig) {
		t.Error("tampered message accepted")
	}
	if Verify("other", "hello", sig) {
		t.Error("wrong secret accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	ta := NewTokenAuth("token-secret", time.Hour)

	tok := ta.Mint(42)
	userID, err := ta.Parse(tok)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
}

func TestTokenExpired(t *testing.T) {
	ta := NewTokenAuth("token-secret", time.Hour)
	tok := ta.mintAt(7, time.Now().Add(-time.Minute))

	if _, err := ta.Parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestTokenTampering(t *testing.T) {
	ta := NewTokenAuth("token-secret", time.Hour)
	other := NewTokenAuth("different-secret", time.Hour)

	tok := ta.Mint(7)
	if _, err := other.Parse(tok); err == nil {
		t.Error("token verified under wrong secret")
	}
	if _, err := ta.Parse(tok + "ff"); err == nil {
		t.Error("signature-extended token accepted")
	}
	if _, err := ta.Parse("garbage"); err == nil {
		t.Error("malformed token accepted")
	}
}
