package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"

	"password_expiry_notifier/internal/domain/account"
)

// userAccountControl bits.
const (
	uacAccountDisabled    = 0x0002
	uacPasswordCantChange = 0x0040
	uacDontExpirePassword = 0x10000
	uacPasswordExpired    = 0x800000
)

const (
	matchingRuleBitAnd  = "1.2.840.113556.1.4.803"
	matchingRuleInChain = "1.2.840.113556.1.4.1941"
	defaultPageSize     = 500
)

const (
	attrAccountName    = "sAMAccountName"
	attrDisplayName    = "displayName"
	attrMail           = "mail"
	attrUAC            = "userAccountControl"
	attrUACComputed    = "msDS-User-Account-Control-Computed"
	attrExpiryComputed = "msDS-UserPasswordExpiryTimeComputed"
	attrResultantPSO   = "msDS-ResultantPSO"
	attrMaxPwdAge      = "msDS-MaximumPasswordAge"
	attrCN             = "cn"
)

var (
	ErrGroupNotFound   = errors.New("group not found in directory")
	ErrAccountNotFound = errors.New("account not found in directory")
	ErrUnknownFlag     = errors.New("unknown account flag")
)

// LDAPConfig holds the connection settings for an Active Directory domain controller.
type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
}

// searcher is the subset of *ldap.Conn the directory uses.
type searcher interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Modify(req *ldap.ModifyRequest) error
}

// LDAPDirectory reads accounts and password settings objects from Active Directory.
// The connection is opened on first use and reopened after a network error.
type LDAPDirectory struct {
	cfg  LDAPConfig
	dial func(LDAPConfig) (searcher, func(), error)

	mu       sync.Mutex
	conn     searcher
	close    func()
	policies map[string]*account.Policy
}

func NewLDAPDirectory(cfg LDAPConfig) *LDAPDirectory {
	return &LDAPDirectory{cfg: cfg, dial: dialLDAP, policies: make(map[string]*account.Policy)}
}

func dialLDAP(cfg LDAPConfig) (searcher, func(), error) {
	conn, err := ldap.DialURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
	}
	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to bind as %s: %w", cfg.BindDN, err)
		}
	}
	return conn, func() { conn.Close() }, nil
}

func (d *LDAPDirectory) session() (searcher, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	conn, closer, err := d.dial(d.cfg)
	if err != nil {
		return nil, err
	}
	d.conn, d.close = conn, closer
	return conn, nil
}

// check drops the connection on network errors so the next call redials.
func (d *LDAPDirectory) check(err error) error {
	if err != nil && ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		d.Close()
	}
	return err
}

func (d *LDAPDirectory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.close != nil {
		d.close()
	}
	d.conn, d.close = nil, nil
	return nil
}

func (d *LDAPDirectory) EnumerateEnabledAccounts(ctx context.Context) ([]*account.Record, error) {
	conn, err := d.session()
	if err != nil {
		return nil, err
	}

	filter := fmt.Sprintf("(&(objectCategory=person)(objectClass=user)(!(%s:%s:=%d)))",
		attrUAC, matchingRuleBitAnd, uacAccountDisabled)
	req := ldap.NewSearchRequest(d.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{attrAccountName, attrDisplayName, attrMail, attrUAC, attrUACComputed, attrExpiryComputed, attrResultantPSO},
		nil)

	res, err := conn.SearchWithPaging(req, defaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate accounts: %w", d.check(err))
	}

	records := make([]*account.Record, 0, len(res.Entries))
	for _, e := range res.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records = append(records, recordFromEntry(e))
	}
	return records, nil
}

func recordFromEntry(e *ldap.Entry) *account.Record {
	uac, _ := strconv.ParseInt(e.GetAttributeValue(attrUAC), 10, 64)
	computed, _ := strconv.ParseInt(e.GetAttributeValue(attrUACComputed), 10, 64)

	return &account.Record{
		ID:                   e.GetAttributeValue(attrAccountName),
		DisplayName:          e.GetAttributeValue(attrDisplayName),
		Email:                strings.TrimSpace(e.GetAttributeValue(attrMail)),
		PasswordNeverExpires: uac&uacDontExpirePassword != 0,
		PasswordExpired:      (uac|computed)&uacPasswordExpired != 0,
		CannotChangePassword: (uac|computed)&uacPasswordCantChange != 0,
		RawPasswordExpiry:    e.GetAttributeValue(attrExpiryComputed),
		PolicyRef:            e.GetAttributeValue(attrResultantPSO),
	}
}

// ListGroupMembers returns the transitive members of group, matched by cn or sAMAccountName.
func (d *LDAPDirectory) ListGroupMembers(ctx context.Context, group string) (map[string]struct{}, error) {
	conn, err := d.session()
	if err != nil {
		return nil, err
	}

	name := ldap.EscapeFilter(group)
	req := ldap.NewSearchRequest(d.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(&(objectClass=group)(|(%s=%s)(%s=%s)))", attrCN, name, attrAccountName, name),
		[]string{attrCN}, nil)
	res, err := conn.Search(req)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return nil, fmt.Errorf("failed to look up group %s: %w", group, d.check(err))
	}
	if res == nil || len(res.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, group)
	}
	groupDN := res.Entries[0].DN

	req = ldap.NewSearchRequest(d.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(&(objectClass=user)(memberOf:%s:=%s))", matchingRuleInChain, ldap.EscapeFilter(groupDN)),
		[]string{attrAccountName}, nil)
	res, err = conn.SearchWithPaging(req, defaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", group, d.check(err))
	}

	members := make(map[string]struct{}, len(res.Entries))
	for _, e := range res.Entries {
		if id := e.GetAttributeValue(attrAccountName); id != "" {
			members[id] = struct{}{}
		}
	}
	return members, ctx.Err()
}

// ResolvePasswordPolicy reads the resultant password settings object of rec.
// Accounts without one have no policy. Policies are cached by DN.
func (d *LDAPDirectory) ResolvePasswordPolicy(_ context.Context, rec *account.Record) (*account.Policy, error) {
	if rec.PolicyRef == "" {
		return nil, nil
	}

	d.mu.Lock()
	p, ok := d.policies[rec.PolicyRef]
	d.mu.Unlock()
	if ok {
		return p, nil
	}

	conn, err := d.session()
	if err != nil {
		return nil, err
	}
	req := ldap.NewSearchRequest(rec.PolicyRef, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)", []string{attrCN, attrMaxPwdAge}, nil)
	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to read password policy %s: %w", rec.PolicyRef, d.check(err))
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}

	age, err := maxPasswordAge(res.Entries[0].GetAttributeValue(attrMaxPwdAge))
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", rec.PolicyRef, err)
	}
	p = &account.Policy{Name: res.Entries[0].GetAttributeValue(attrCN), MaxPasswordAge: age}

	d.mu.Lock()
	d.policies[rec.PolicyRef] = p
	d.mu.Unlock()
	return p, nil
}

// maxPasswordAge decodes an AD interval: negative 100ns units, or the minimum int64 for "never".
func maxPasswordAge(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", attrMaxPwdAge, raw, err)
	}
	if v == -1<<63 {
		return 0, nil
	}
	if v < 0 {
		v = -v
	}
	return time.Duration(v) * 100, nil
}

func (d *LDAPDirectory) SetAccountFlag(_ context.Context, accountID string, flag account.Flag, value bool) error {
	var bit int64
	switch flag {
	case account.FlagPasswordNeverExpires:
		bit = uacDontExpirePassword
	case account.FlagCannotChangePassword:
		bit = uacPasswordCantChange
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFlag, flag)
	}

	conn, err := d.session()
	if err != nil {
		return err
	}
	req := ldap.NewSearchRequest(d.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(&(objectClass=user)(%s=%s))", attrAccountName, ldap.EscapeFilter(accountID)),
		[]string{attrUAC}, nil)
	res, err := conn.Search(req)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", accountID, d.check(err))
	}
	if len(res.Entries) == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	entry := res.Entries[0]
	uac, err := strconv.ParseInt(entry.GetAttributeValue(attrUAC), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s on %s: %w", attrUAC, accountID, err)
	}
	updated := uac &^ bit
	if value {
		updated = uac | bit
	}
	if updated == uac {
		return nil
	}

	mod := ldap.NewModifyRequest(entry.DN, nil)
	mod.Replace(attrUAC, []string{strconv.FormatInt(updated, 10)})
	if err := conn.Modify(mod); err != nil {
		return fmt.Errorf("failed to update %s on %s: %w", attrUAC, accountID, d.check(err))
	}
	return nil
}
