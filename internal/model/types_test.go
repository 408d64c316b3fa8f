package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMFAScopes_Scope(t *testing.T) {
	tests := []struct {
		name   string
		scopes MFAScopes
		want   Scope
	}{
		{"empty map is approved", MFAScopes{}, ScopeApproved},
		{"nil map is approved", nil, ScopeApproved},
		{"single pending", MFAScopes{MFATypeEmail: 0}, ScopeNone},
		{"single satisfied", MFAScopes{MFATypeEmail: 1}, ScopeApproved},
		{"partially satisfied", MFAScopes{MFATypeEmail: 1, MFATypeSMS: 0}, ScopeNone},
		{"all satisfied", MFAScopes{MFATypeEmail: 1, MFATypeSMS: 1}, ScopeApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scopes.Scope())
			assert.Equal(t, tt.want == ScopeApproved, tt.scopes.Approved())
		})
	}
}

func TestMFAScopes_CloneIsIndependent(t *testing.T) {
	orig := NewMFAScopes(MFATypeEmail, MFATypeSMS)
	c := orig.Clone()
	c[MFATypeEmail] = 1

	assert.Equal(t, 0, orig[MFATypeEmail], "original must not change")
	assert.Equal(t, 1, c[MFATypeEmail])
}

func TestMFAScopes_ValueScan(t *testing.T) {
	in := MFAScopes{MFATypeEmail: 1, MFATypeSMS: 0}
	v, err := in.Value()
	require.NoError(t, err)

	var out MFAScopes
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan([]byte(`{"authenticator":0}`)))
	assert.Equal(t, MFAScopes{MFATypeAuthenticator: 0}, out)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)

	assert.Error(t, out.Scan(42))
}

func TestParseMFAType(t *testing.T) {
	assert.Equal(t, MFATypeEmail, ParseMFAType("email"))
	assert.Equal(t, MFATypeSMS, ParseMFAType("sms"))
	assert.Equal(t, MFATypeAuthenticator, ParseMFAType("authenticator"))
	assert.Equal(t, MFATypeUnknown, ParseMFAType("EMAIL"))
	assert.Equal(t, MFATypeUnknown, ParseMFAType("push"))
}

func TestOtpChallenge_Valid(t *testing.T) {
	now := time.Now()
	c := &OtpChallenge{ExpireAt: now.Add(time.Minute)}
	assert.True(t, c.Valid(now))
	assert.False(t, c.Valid(now.Add(time.Minute)))
}
