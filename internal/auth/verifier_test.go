package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func signHS256(t *testing.T, secret []byte, payload string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(payload))
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(header + "." + body))
	return header + "." + body + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyDevToken(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	p, err := v.Verify("t1:admin")
	if err != nil {
		t.Fatal(err)
	}
	if p.Tenant != "t1" || p.Role != "admin" {
		t.Fatalf("principal = %+v", p)
	}
	if _, err := v.Verify("garbage"); err == nil {
		t.Fatal("expected error for malformed dev token")
	}
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid, payload string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT","kid":"` + kid + `"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(payload))
	h := sha256.Sum256([]byte(header + "." + body))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h[:])
	if err != nil {
		t.Fatal(err)
	}
	return header + "." + body + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func TestVerifyJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		doc := map[string]any{"keys": []map[string]string{{
			"kty": "RSA", "kid": "k1", "alg": "RS256",
			"n": base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e": base64.RawURLEncoding.EncodeToString([]byte{1, 0, 1}),
		}}}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	v := &Verifier{
		Mode: "jwks", JWKSURL: srv.URL,
		TenantClaim: "tenant", RoleClaim: "role",
		http: srv.Client(), cacheTTL: time.Minute,
	}

	p, err := v.Verify(signRS256(t, key, "k1", `{"tenant":"t1","role":"Operator"}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.Tenant != "t1" || p.Role != "operator" {
		t.Fatalf("principal = %+v", p)
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(signRS256(t, other, "k1", `{"tenant":"t1","role":"admin"}`)); err == nil {
		t.Fatal("expected bad signature for wrong key")
	}
	if _, err := v.Verify(signRS256(t, key, "nope", `{"tenant":"t1","role":"admin"}`)); err == nil {
		t.Fatal("expected unknown kid to fail")
	}
	if fetches != 1 {
		t.Fatalf("jwks fetches = %d, want a single cached fetch", fetches)
	}
}

func TestVerifyHMAC(t *testing.T) {
	secret := []byte("s3cret")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "tenant", RoleClaim: "role"}

	tok := signHS256(t, secret, `{"tenant":"t1","role":"Admin"}`)
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if p.Tenant != "t1" || p.Role != "admin" {
		t.Fatalf("principal = %+v", p)
	}

	bad := signHS256(t, []byte("other"), `{"tenant":"t1","role":"admin"}`)
	if _, err := v.Verify(bad); err == nil {
		t.Fatal("expected bad signature")
	}

	missing := signHS256(t, secret, `{"role":"admin"}`)
	if _, err := v.Verify(missing); err == nil {
		t.Fatal("expected missing tenant claim")
	}
}
