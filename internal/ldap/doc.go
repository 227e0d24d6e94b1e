/*
Package ldap provides read access to the Zimbra directory for the Zimbra
provider and the zmstate command.

# Paged search

Zimbra's OpenLDAP enforces a server side size limit, so every lookup that may
match many entries goes through Pager, which implements the simple paged
results control (RFC 2696). A Pager:

  - sends the page size and the current cookie with every request
  - reuses the same base, scope, filter and attributes for every page
  - stops when the server returns an empty cookie
  - fails with ErrPagingControlMissing, wrapped in a *PagingError, when a
    response carries no paging control
  - returns transport errors unchanged and never partial results

The control is sent in one of two encodings chosen once per Pager:
ControlEncodingNamed uses go-ldap's ControlPaging; ControlEncodingLegacy sends
a critical raw control holding the BER tuple (size, cookie).

# Client

Client wraps a connection pool. Each pooled connection dials one of the
configured URLs, upgrades ldap:// connections with StartTLS when requested and
simple binds with the zimbra_ldap_userdn credentials. A paged search holds one
connection for all its pages because cookies are connection scoped.

Basic usage:

	config := ldap.DefaultConfig()
	config.LDAPURLs = []string{"ldap://mail.example.com:389"}
	config.BindDN = "uid=zimbra,cn=admins,cn=zimbra"
	config.Password = password

	client, err := ldap.NewClient(ctx, config)
	if err != nil {
		return err
	}
	defer client.Close()

	values, err := client.GetAttribute(ctx, ldap.ConfigDN, "zimbraImapMaxConnections")

# Errors

Failures are returned as *LDAPError carrying a category. Use IsNotFoundError,
IsAuthenticationError and IsPagingError rather than matching result codes.
*/
package ldap
