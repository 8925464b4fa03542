package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_Type7PasswordAndCommunity(t *testing.T) {
	in := "password 7 094F471A1A0A\nsnmp-server community PUBLIC\n"
	want := "password 7 ***REDACTED***\nsnmp-server community ***REDACTED***\n"
	assert.Equal(t, want, Sanitize(in))
}

func TestSanitize_HashedSecrets(t *testing.T) {
	in := "enable secret 5 $1$abcd$efgh\nsecret 9 $9$xyz\nsecret 8 $8$abc\n"
	out := Sanitize(in)
	assert.NotContains(t, out, "$1$abcd$efgh")
	assert.NotContains(t, out, "$9$xyz")
	assert.NotContains(t, out, "$8$abc")
	assert.Contains(t, out, "enable secret 5 ***REDACTED***")
}

func TestSanitize_UsernameLines(t *testing.T) {
	in := "username admin secret 5 $1$hash$val\nusername ops password 7 13061E010803\n"
	out := Sanitize(in)
	assert.Equal(t, "username admin secret 5 ***REDACTED***\nusername ops password 7 ***REDACTED***\n", out)
}

func TestSanitize_KeyMaterial(t *testing.T) {
	in := strings.Join([]string{
		"crypto isakmp key pre-shared-key MySecretKey address 1.2.3.4",
		"key-string SuperSecret123",
		"radius server-private 10.1.1.1 key RadiusSecret",
		"key 7 06120A22",
		"ntp authentication-key 42 md5 ntpsecret",
	}, "\n")
	out := Sanitize(in)
	for _, leaked := range []string{"MySecretKey", "SuperSecret123", "RadiusSecret", "06120A22", "ntpsecret"} {
		assert.NotContains(t, out, leaked)
	}
	assert.Contains(t, out, "ntp authentication-key 42 md5 ***REDACTED***")
}

func TestSanitize_GenericEOLPassword(t *testing.T) {
	in := "line vty 0 4\n password hunter2\n login\n"
	out := Sanitize(in)
	assert.Equal(t, "line vty 0 4\n password ***REDACTED***\n login\n", out)
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"password 7 094F471A1A0A\n",
		"snmp-server community PUBLIC RO\n",
		"username admin password 7 abc\npassword plain\n",
		"enable secret 5 $1$a$b\nkey-string k\n",
		"no credentials here at all\n",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
}

func TestSanitize_PreservesStructure(t *testing.T) {
	in := "interface Gi0/1\n description uplink\n"
	assert.Equal(t, in, Sanitize(in))

	in = "  password 7 ABCD\n"
	out := Sanitize(in)
	assert.True(t, strings.HasPrefix(out, "  "), "leading whitespace preserved")
	assert.True(t, strings.HasSuffix(out, "\n"), "line boundary preserved")
}

func TestSanitize_CaseInsensitive(t *testing.T) {
	out := Sanitize("PASSWORD 7 ABCD\nSnmp-Server Community secret\n")
	assert.NotContains(t, out, "ABCD")
	assert.Contains(t, out, "***REDACTED***")
}
