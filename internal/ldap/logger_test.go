package ldap

import "testing"

func TestSanitizeFields(t *testing.T) {
	fields := map[string]any{
		"bind_dn":  "uid=zimbra,cn=admins,cn=zimbra",
		"password": "hunter2",
		"filter":   "(userPassword=*)",
		"url":      "ldap://mail.example.com:389/?password=hunter2",
		"pages":    3,
	}

	got := SanitizeFields(fields)

	if got["password"] != "[REDACTED]" {
		t.Errorf("password not redacted: %v", got["password"])
	}
	if got["url"] != "[REDACTED]" {
		t.Errorf("url with credentials not redacted: %v", got["url"])
	}
	if got["bind_dn"] != fields["bind_dn"] || got["filter"] != fields["filter"] || got["pages"] != 3 {
		t.Errorf("unexpected changes to safe fields: %v", got)
	}
	if fields["password"] != "hunter2" {
		t.Error("SanitizeFields modified its input")
	}
}

func TestSanitizeFields_Nil(t *testing.T) {
	if got := SanitizeFields(nil); got == nil || len(got) != 0 {
		t.Errorf("SanitizeFields(nil) = %v, want empty map", got)
	}
}
