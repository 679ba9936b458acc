package authcore

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// rfcSecret is the shared secret of the RFC 6238 appendix vectors,
// "12345678901234567890" in base32.
var rfcSecret = base32.StdEncoding.WithPadding(base32.NoPadding).
	EncodeToString([]byte("12345678901234567890"))

func TestVerifyCodeRFCVectors(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 8, Period: 30, Skew: 0})

	vectors := []struct {
		unix int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}
	for _, v := range vectors {
		ok, err := m.VerifyCode(rfcSecret, v.code, time.Unix(v.unix, 0))
		require.NoError(t, err)
		require.True(t, ok, "code %s at t=%d", v.code, v.unix)
	}
}

func TestVerifyCodeSkewWindow(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 8, Period: 30, Skew: 1})

	// The code for t=59 is still valid one period later with skew 1, and
	// dead two periods later.
	ok, err := m.VerifyCode(rfcSecret, "94287082", time.Unix(59+30, 0))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.VerifyCode(rfcSecret, "94287082", time.Unix(59+60, 0))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Skew: 1})
	now := time.Unix(59, 0)

	for _, code := range []string{"", "12345", "1234567", "abcdef", "12 456"} {
		ok, err := m.VerifyCode(rfcSecret, code, now)
		require.NoError(t, err)
		require.False(t, ok, "code %q", code)
	}

	// Surrounding whitespace is fine.
	ok, err := m.VerifyCode(rfcSecret, " 287082 ", now)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.VerifyCode("not base32 at all!!", "287082", now)
	require.Error(t, err)
}

func TestGenerateSecretShape(t *testing.T) {
	m := newTOTPManager(TOTPConfig{})

	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		secret, err := m.GenerateSecret()
		require.NoError(t, err)
		require.Len(t, secret, 32) // 20 bytes, base32, no padding
		require.False(t, seen[secret])
		seen[secret] = true

		_, err = base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
		require.NoError(t, err)
	}
}

func TestProvisionURI(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "Shelterly", Digits: 6, Period: 30})

	uri := m.ProvisionURI("SECRETBASE32", "user@example.com")
	require.True(t, strings.HasPrefix(uri, "otpauth://totp/Shelterly:user@example.com?"))
	require.Contains(t, uri, "secret=SECRETBASE32")
	require.Contains(t, uri, "issuer=Shelterly")
	require.Contains(t, uri, "digits=6")
	require.Contains(t, uri, "period=30")
	require.Contains(t, uri, "algorithm=SHA1")
}

func TestBackupCodesSingleUse(t *testing.T) {
	m := newTOTPManager(TOTPConfig{BackupCodeCount: 8})

	codes, hashes, err := m.GenerateBackupCodes(0)
	require.NoError(t, err)
	require.Len(t, codes, 8)
	require.Len(t, hashes, 8)

	for _, code := range codes {
		require.Regexp(t, `^[A-Z2-9]{4}-[A-Z2-9]{4}$`, code)
	}

	ok, remaining := m.VerifyBackupCode(codes[3], hashes)
	require.True(t, ok)
	require.Len(t, remaining, 7)

	// The consumed code no longer matches the remaining hashes.
	ok, _ = m.VerifyBackupCode(codes[3], remaining)
	require.False(t, ok)

	// Matching is case-insensitive on presentation.
	ok, _ = m.VerifyBackupCode(strings.ToLower(codes[0]), remaining)
	require.True(t, ok)

	ok, unchanged := m.VerifyBackupCode("XXXX-XXXX", remaining)
	require.False(t, ok)
	require.Equal(t, remaining, unchanged)
}
