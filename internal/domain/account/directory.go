package account

import "context"

// Directory defines the operations the engine needs from the directory service.
// Implementations live in internal/infra/directory.
type Directory interface {
	// EnumerateEnabledAccounts returns every enabled user account, in directory order.
	EnumerateEnabledAccounts(ctx context.Context) ([]*Record, error)
	// ListGroupMembers returns the account IDs of the members of the named group.
	ListGroupMembers(ctx context.Context, group string) (map[string]struct{}, error)
	// ResolvePasswordPolicy returns the policy applying to the account, or nil if none does.
	ResolvePasswordPolicy(ctx context.Context, rec *Record) (*Policy, error)
	SetAccountFlag(ctx context.Context, accountID string, flag Flag, value bool) error
}
