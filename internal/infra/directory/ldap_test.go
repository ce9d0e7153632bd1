package directory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"password_expiry_notifier/internal/domain/account"
)

type fakeConn struct {
	entries  map[string][]*ldap.Entry // keyed by a filter substring
	searches []*ldap.SearchRequest
	modified []*ldap.ModifyRequest
}

func (f *fakeConn) find(req *ldap.SearchRequest) *ldap.SearchResult {
	f.searches = append(f.searches, req)
	for key, entries := range f.entries {
		if strings.Contains(req.Filter, key) || req.BaseDN == key {
			return &ldap.SearchResult{Entries: entries}
		}
	}
	return &ldap.SearchResult{}
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return f.find(req), nil
}

func (f *fakeConn) SearchWithPaging(req *ldap.SearchRequest, _ uint32) (*ldap.SearchResult, error) {
	return f.find(req), nil
}

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	f.modified = append(f.modified, req)
	return nil
}

func newTestDirectory(conn *fakeConn) *LDAPDirectory {
	d := NewLDAPDirectory(LDAPConfig{BaseDN: "DC=corp,DC=example,DC=com"})
	d.dial = func(LDAPConfig) (searcher, func(), error) { return conn, func() {}, nil }
	return d
}

func TestEnumerateEnabledAccounts_MapsAttributes(t *testing.T) {
	conn := &fakeConn{entries: map[string][]*ldap.Entry{
		"objectCategory=person": {
			ldap.NewEntry("CN=John Doe,OU=Users,DC=corp,DC=example,DC=com", map[string][]string{
				"sAMAccountName":                      {"jdoe"},
				"displayName":                         {"John Doe"},
				"mail":                                {" jdoe@example.com "},
				"userAccountControl":                  {"66112"}, // NORMAL_ACCOUNT | DONT_EXPIRE_PASSWORD | 0x40
				"msDS-User-Account-Control-Computed":  {"8388608"},
				"msDS-UserPasswordExpiryTimeComputed": {"133862400000000000"},
				"msDS-ResultantPSO":                   {"CN=Staff,CN=Password Settings Container,CN=System,DC=corp,DC=example,DC=com"},
			}),
		},
	}}
	d := newTestDirectory(conn)

	recs, err := d.EnumerateEnabledAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, "jdoe", r.ID)
	assert.Equal(t, "John Doe", r.DisplayName)
	assert.Equal(t, "jdoe@example.com", r.Email)
	assert.True(t, r.PasswordNeverExpires)
	assert.True(t, r.PasswordExpired)
	assert.True(t, r.CannotChangePassword)
	assert.Equal(t, "133862400000000000", r.RawPasswordExpiry)
	assert.Contains(t, r.PolicyRef, "CN=Staff")

	require.Len(t, conn.searches, 1)
	assert.Contains(t, conn.searches[0].Filter, "1.2.840.113556.1.4.803:=2")
}

func TestListGroupMembers(t *testing.T) {
	groupDN := "CN=Pilot (Paris),OU=Groups,DC=corp,DC=example,DC=com"
	conn := &fakeConn{entries: map[string][]*ldap.Entry{
		"objectClass=group": {ldap.NewEntry(groupDN, map[string][]string{"cn": {"Pilot (Paris)"}})},
		"memberOf:": {
			ldap.NewEntry("CN=a", map[string][]string{"sAMAccountName": {"jdoe"}}),
			ldap.NewEntry("CN=b", map[string][]string{"sAMAccountName": {"asmith"}}),
		},
	}}
	d := newTestDirectory(conn)

	members, err := d.ListGroupMembers(context.Background(), "Pilot (Paris)")
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Contains(t, members, "jdoe")
	assert.Contains(t, members, "asmith")

	// Parentheses in names must be escaped in filters.
	assert.Contains(t, conn.searches[0].Filter, `Pilot \28Paris\29`)
	assert.Contains(t, conn.searches[1].Filter, "1.2.840.113556.1.4.1941")
}

func TestListGroupMembers_UnknownGroup(t *testing.T) {
	d := newTestDirectory(&fakeConn{})
	_, err := d.ListGroupMembers(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestResolvePasswordPolicy_DecodesAndCaches(t *testing.T) {
	pso := "CN=Staff,CN=Password Settings Container,CN=System,DC=corp,DC=example,DC=com"
	conn := &fakeConn{entries: map[string][]*ldap.Entry{
		pso: {ldap.NewEntry(pso, map[string][]string{
			"cn":                      {"Staff"},
			"msDS-MaximumPasswordAge": {"-77760000000000"}, // 90 days
		})},
	}}
	d := newTestDirectory(conn)
	rec := &account.Record{ID: "jdoe", PolicyRef: pso}

	p, err := d.ResolvePasswordPolicy(context.Background(), rec)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Staff", p.Name)
	assert.Equal(t, 90*24*time.Hour, p.MaxPasswordAge)
	assert.Equal(t, 90, p.MaxAgeDays())

	again, err := d.ResolvePasswordPolicy(context.Background(), rec)
	require.NoError(t, err)
	assert.Same(t, p, again)
	assert.Len(t, conn.searches, 1)
}

func TestResolvePasswordPolicy_NoReference(t *testing.T) {
	d := newTestDirectory(&fakeConn{})
	p, err := d.ResolvePasswordPolicy(context.Background(), &account.Record{ID: "jdoe"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSetAccountFlag_ClearsBit(t *testing.T) {
	conn := &fakeConn{entries: map[string][]*ldap.Entry{
		"sAMAccountName=jdoe": {ldap.NewEntry("CN=John Doe,DC=corp", map[string][]string{"userAccountControl": {"66048"}})},
	}}
	d := newTestDirectory(conn)

	require.NoError(t, d.SetAccountFlag(context.Background(), "jdoe", account.FlagPasswordNeverExpires, false))
	require.Len(t, conn.modified, 1)
	assert.Equal(t, "CN=John Doe,DC=corp", conn.modified[0].DN)
	require.Len(t, conn.modified[0].Changes, 1)
	assert.Equal(t, []string{"512"}, conn.modified[0].Changes[0].Modification.Vals)

	// Already clear: nothing to write.
	require.NoError(t, d.SetAccountFlag(context.Background(), "jdoe", account.FlagCannotChangePassword, false))
	assert.Len(t, conn.modified, 1)
}

func TestSetAccountFlag_Errors(t *testing.T) {
	d := newTestDirectory(&fakeConn{})
	assert.ErrorIs(t, d.SetAccountFlag(context.Background(), "jdoe", "Locked", false), ErrUnknownFlag)
	assert.ErrorIs(t, d.SetAccountFlag(context.Background(), "ghost", account.FlagPasswordNeverExpires, false), ErrAccountNotFound)
}

func TestMaxPasswordAge(t *testing.T) {
	age, err := maxPasswordAge("-9223372036854775808")
	require.NoError(t, err)
	assert.Zero(t, age)

	_, err = maxPasswordAge("ninety")
	assert.Error(t, err)
}
